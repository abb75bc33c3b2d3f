// Package storage provides key/value object storage with conditional writes.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a requested path does not exist in storage.
	ErrNotFound = errors.New("not found")
	// ErrPreconditionFailed is returned when a conditional write loses.
	ErrPreconditionFailed = errors.New("precondition failed")
)

// Condition guards a write. The zero value writes unconditionally.
type Condition struct {
	// IfMatch requires the current object's token to equal this value.
	IfMatch string
	// IfNoneMatch requires that no object exists at the path.
	IfNoneMatch bool
}

// Storage provides an abstraction over key-value style file storage.
// Tokens are opaque version identifiers (content hash locally, ETag on S3).
type Storage interface {
	Read(ctx context.Context, path string) (data []byte, token string, err error)
	Write(ctx context.Context, path string, data []byte, cond Condition) (token string, err error)
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
}
