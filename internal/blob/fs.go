package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FS is a filesystem-backed store rooted at a single directory. Keys map to
// file paths under the root. Writes go through a temp file plus rename so a
// concurrent reader never sees a partially written object.
//
// Conditional writes are guarded by per-key mutexes, which makes the
// compare-and-swap correct across goroutines of one process. Cross-process
// exclusion is not provided; local mode runs a single process.
type FS struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFS creates a filesystem store rooted at root, creating it if needed.
func NewFS(root string) (*FS, error) {
	if root == "" {
		return nil, fmt.Errorf("blob: root directory required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create root: %w", err)
	}
	return &FS{root: root, locks: make(map[string]*sync.Mutex)}, nil
}

// Root returns the store's root directory.
func (s *FS) Root() string { return s.root }

func (s *FS) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *FS) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *FS) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("blob: read %s: %w", key, err)
	}
	return data, nil
}

func (s *FS) Put(ctx context.Context, key string, obj Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()
	return s.write(key, obj.Data)
}

func (s *FS) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("blob: stat %s: %w", key, err)
}

func (s *FS) GetVersioned(ctx context.Context, key string) ([]byte, string, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		return nil, "", err
	}
	return data, contentVersion(data), nil
}

func (s *FS) PutIf(ctx context.Context, key string, obj Object, version string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	current, err := os.ReadFile(s.path(key))
	switch {
	case err == nil:
		if version == "" || contentVersion(current) != version {
			return "", fmt.Errorf("%w: %s", ErrPreconditionFailed, key)
		}
	case os.IsNotExist(err):
		if version != "" {
			return "", fmt.Errorf("%w: %s", ErrPreconditionFailed, key)
		}
	default:
		return "", fmt.Errorf("blob: read %s: %w", key, err)
	}

	if err := s.write(key, obj.Data); err != nil {
		return "", err
	}
	return contentVersion(obj.Data), nil
}

// write performs an atomic temp-file/rename write under an already-held lock.
func (s *FS) write(key string, data []byte) error {
	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("blob: mkdir for %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".blob-*")
	if err != nil {
		return fmt.Errorf("blob: temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("blob: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("blob: close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("blob: rename %s: %w", key, err)
	}
	return nil
}

// contentVersion derives a version token from object content. Filesystems do
// not hand out ETags, so the token is a content hash.
func contentVersion(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
