// Package blob provides durable key-addressed object storage for campaign
// artifacts: briefs, base images, rendered variants, and the per-campaign
// manifest document.
//
// Two storage backends are provided: a filesystem store for local runs and an
// S3 store for cloud deployments, plus an in-memory store used by tests. The
// manifest aggregation protocol additionally requires conditional writes, so
// stores that can guard a write on a version token implement ConditionalStore.
package blob

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when the requested key does not exist.
	ErrNotFound = errors.New("blob: object not found")

	// ErrPreconditionFailed is returned by PutIf when the stored version no
	// longer matches the caller's version token.
	ErrPreconditionFailed = errors.New("blob: precondition failed")
)

// Object is a stored payload with its content type and optional metadata.
type Object struct {
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

// Store is durable key-addressed object storage.
type Store interface {
	// Get returns the payload stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores obj at key, replacing any existing object. The write is
	// whole-object: a concurrent reader never observes a torn payload.
	Put(ctx context.Context, key string, obj Object) error

	// Exists reports whether key holds an object.
	Exists(ctx context.Context, key string) (bool, error)
}

// ConditionalStore extends Store with versioned reads and compare-and-swap
// writes. Version tokens are opaque; callers must not interpret them.
type ConditionalStore interface {
	Store

	// GetVersioned returns the payload at key together with its current
	// version token.
	GetVersioned(ctx context.Context, key string) ([]byte, string, error)

	// PutIf stores obj at key only while the stored version still matches
	// version, returning the new version token. An empty version requires
	// that the key does not exist yet (create-only write). A stale version
	// yields ErrPreconditionFailed.
	PutIf(ctx context.Context, key string, obj Object, version string) (string, error)
}
