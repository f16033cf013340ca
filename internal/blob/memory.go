package blob

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// Memory is an in-memory store used by tests and by the end-to-end pipeline
// harness. It implements the same conditional-write semantics as the durable
// stores, with a per-key revision counter as the version token.
type Memory struct {
	mu       sync.Mutex
	objects  map[string]Object
	versions map[string]uint64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		objects:  make(map[string]Object),
		versions: make(map[string]uint64),
	}
}

func (s *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	data := make([]byte, len(obj.Data))
	copy(data, obj.Data)
	return data, nil
}

func (s *Memory) Put(ctx context.Context, key string, obj Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store(key, obj)
	return nil
}

func (s *Memory) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *Memory) GetVersioned(ctx context.Context, key string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	data := make([]byte, len(obj.Data))
	copy(data, obj.Data)
	return data, strconv.FormatUint(s.versions[key], 10), nil
}

func (s *Memory) PutIf(ctx context.Context, key string, obj Object, version string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.versions[key]
	switch {
	case !exists && version != "":
		return "", fmt.Errorf("%w: %s", ErrPreconditionFailed, key)
	case exists && version == "":
		return "", fmt.Errorf("%w: %s", ErrPreconditionFailed, key)
	case exists && strconv.FormatUint(current, 10) != version:
		return "", fmt.Errorf("%w: %s", ErrPreconditionFailed, key)
	}

	s.store(key, obj)
	return strconv.FormatUint(s.versions[key], 10), nil
}

// Len returns the number of stored objects.
func (s *Memory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Keys returns all stored keys in unspecified order.
func (s *Memory) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}

func (s *Memory) store(key string, obj Object) {
	data := make([]byte, len(obj.Data))
	copy(data, obj.Data)
	stored := Object{Data: data, ContentType: obj.ContentType}
	if obj.Metadata != nil {
		stored.Metadata = make(map[string]string, len(obj.Metadata))
		for k, v := range obj.Metadata {
			stored.Metadata[k] = v
		}
	}
	s.objects[key] = stored
	s.versions[key]++
}
