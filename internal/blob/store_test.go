package blob

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// conditionalStores builds one of each store implementation that supports
// conditional writes, so the CAS semantics are verified uniformly.
func conditionalStores(t *testing.T) map[string]ConditionalStore {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	require.NoError(t, err)
	return map[string]ConditionalStore{
		"fs":     fs,
		"memory": NewMemory(),
	}
}

func TestStore_PutGetExists(t *testing.T) {
	for name, s := range conditionalStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ok, err := s.Exists(ctx, "output/c1/manifest.json")
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = s.Get(ctx, "output/c1/manifest.json")
			assert.True(t, errors.Is(err, ErrNotFound))

			obj := Object{Data: []byte(`{"a":1}`), ContentType: "application/json"}
			require.NoError(t, s.Put(ctx, "output/c1/manifest.json", obj))

			ok, err = s.Exists(ctx, "output/c1/manifest.json")
			require.NoError(t, err)
			assert.True(t, ok)

			data, err := s.Get(ctx, "output/c1/manifest.json")
			require.NoError(t, err)
			assert.Equal(t, []byte(`{"a":1}`), data)
		})
	}
}

func TestStore_ConditionalWriteSemantics(t *testing.T) {
	for name, s := range conditionalStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "output/c1/manifest.json"

			// Create-only write succeeds once.
			v1, err := s.PutIf(ctx, key, Object{Data: []byte("one")}, "")
			require.NoError(t, err)
			require.NotEmpty(t, v1)

			_, err = s.PutIf(ctx, key, Object{Data: []byte("again")}, "")
			assert.True(t, errors.Is(err, ErrPreconditionFailed), "create-only on existing key")

			// Write guarded on the current version succeeds and rolls the
			// token forward.
			v2, err := s.PutIf(ctx, key, Object{Data: []byte("two")}, v1)
			require.NoError(t, err)
			require.NotEqual(t, v1, v2)

			// The stale token is now rejected: this is the lost-update guard.
			_, err = s.PutIf(ctx, key, Object{Data: []byte("lost")}, v1)
			assert.True(t, errors.Is(err, ErrPreconditionFailed), "stale version")

			data, _, err := s.GetVersioned(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, []byte("two"), data)

			// Guarded write on a missing key fails.
			_, err = s.PutIf(ctx, "missing", Object{Data: []byte("x")}, v2)
			assert.True(t, errors.Is(err, ErrPreconditionFailed))
		})
	}
}

func TestFS_NestedKeysCreateDirectories(t *testing.T) {
	fs, err := NewFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key := "output/c1/cold-brew/aspect-ratios/1080x1080/instagram-square.jpg"
	require.NoError(t, fs.Put(ctx, key, Object{Data: []byte("jpg")}))

	data, err := fs.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpg"), data)
}

func TestFS_RequiresRoot(t *testing.T) {
	_, err := NewFS("")
	require.Error(t, err)
}

func TestMemory_Inventory(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.Put(ctx, "a", Object{Data: []byte("1")}))
	require.NoError(t, mem.Put(ctx, "b", Object{Data: []byte("2")}))
	assert.Equal(t, 2, mem.Len())
	assert.ElementsMatch(t, []string{"a", "b"}, mem.Keys())
}
