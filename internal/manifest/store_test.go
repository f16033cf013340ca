package manifest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"adforge/internal/blob"
)

func newTestStore(t *testing.T) (*Store, *blob.Memory) {
	t.Helper()
	mem := blob.NewMemory()
	return NewStore(mem, zaptest.NewLogger(t)), mem
}

func createCampaign(t *testing.T, s *Store, expected int) *Manifest {
	t.Helper()
	m := newTestManifest(expected)
	for i := 0; i < expected; i++ {
		m.Register(i, fmt.Sprintf("product-%d", i))
	}
	require.NoError(t, s.Create(context.Background(), m))
	return m
}

func TestStore_CreateIsCreateOnly(t *testing.T) {
	s, _ := newTestStore(t)
	m := newTestManifest(2)
	require.NoError(t, s.Create(context.Background(), m))

	// A duplicate intake of the same identity must not clobber state.
	err := s.Create(context.Background(), m)
	require.Error(t, err)
	assert.True(t, errors.Is(err, blob.ErrPreconditionFailed))
}

func TestStore_UpdateRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	createCampaign(t, s, 2)

	updated, err := s.Update(context.Background(), "c1", func(m *Manifest) error {
		m.RecordImage(0, "img.png", SourceGenerated, 0.04, "test-model")
		return nil
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.04, updated.TotalCost, 1e-9)

	loaded, err := s.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.InDelta(t, 0.04, loaded.TotalCost, 1e-9)
}

func TestStore_UpdateMissingCampaign(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Update(context.Background(), "nope", func(m *Manifest) error { return nil })
	require.Error(t, err)
	assert.True(t, errors.Is(err, blob.ErrNotFound))
}

// TestStore_ConcurrentMerges is the lost-update property: N workers merging
// concurrently through the compare-and-swap protocol must all land, the
// completion status must flip, and the total must equal the exact sum of
// every contribution.
func TestStore_ConcurrentMerges(t *testing.T) {
	const products = 8
	s, _ := newTestStore(t)
	createCampaign(t, s, products)

	ctx := context.Background()
	vs := []Variant{{Platform: "instagram-square", Key: "k"}}

	var wg sync.WaitGroup
	errs := make(chan error, products*2)
	for i := 0; i < products; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "c1", func(m *Manifest) error {
				m.RecordImage(i, fmt.Sprintf("img-%d.png", i), SourceGenerated, 0.04, "test-model")
				return nil
			})
			errs <- err
			_, err = s.Update(ctx, "c1", func(m *Manifest) error {
				m.RecordVariants(i, fmt.Sprintf("img-%d.png", i), SourceGenerated, vs, 0.05, time.Now().UTC())
				return nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	final, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, products, final.CompletedProducts())
	assert.InDelta(t, float64(products)*(0.04+0.05), final.TotalCost, 1e-9)
}

func TestStore_CompletionTimestampIsUTC(t *testing.T) {
	s, _ := newTestStore(t)
	createCampaign(t, s, 1)

	// A wall clock in a non-UTC zone must still stamp completed_at in UTC,
	// matching the per-record timestamps the workers write.
	tokyo := time.FixedZone("JST", 9*60*60)
	s.now = func() time.Time { return time.Date(2026, 8, 30, 21, 0, 0, 0, tokyo) }

	updated, err := s.Update(context.Background(), "c1", func(m *Manifest) error {
		m.RecordVariants(0, "img.png", SourceGenerated,
			[]Variant{{Platform: "instagram-square", Key: "k"}}, 0.05, s.now().UTC())
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, updated.Status)
	require.NotNil(t, updated.CompletedAt)
	assert.Equal(t, time.UTC, updated.CompletedAt.Location())
	assert.Equal(t, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), *updated.CompletedAt)
}

// TestStore_DuplicateMergesDoNotDoubleCount models at-least-once dispatch:
// the same stage update delivered twice must count once.
func TestStore_DuplicateMergesDoNotDoubleCount(t *testing.T) {
	s, _ := newTestStore(t)
	createCampaign(t, s, 2)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Update(ctx, "c1", func(m *Manifest) error {
			m.RecordImage(0, "img.png", SourceGenerated, 0.04, "test-model")
			return nil
		})
		require.NoError(t, err)
	}

	final, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.InDelta(t, 0.04, final.TotalCost, 1e-9)
}

// conflictingStore fails every conditional write to exercise the retry bound.
type conflictingStore struct {
	*blob.Memory
}

func (c *conflictingStore) PutIf(ctx context.Context, key string, obj blob.Object, version string) (string, error) {
	if version != "" {
		return "", blob.ErrPreconditionFailed
	}
	return c.Memory.PutIf(ctx, key, obj, version)
}

func TestStore_UpdateGivesUpAfterRetryBound(t *testing.T) {
	mem := &conflictingStore{Memory: blob.NewMemory()}
	s := NewStore(mem, zaptest.NewLogger(t))
	s.attempts = 3

	m := newTestManifest(2)
	require.NoError(t, s.Create(context.Background(), m))

	_, err := s.Update(context.Background(), "c1", func(m *Manifest) error { return nil })
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))
}
