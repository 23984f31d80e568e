package gcs

import (
	"context"
	"errors"
)

var (
	// ErrObjectNotFound is returned when the requested object does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrPreconditionFailed is returned when a conditional write loses against
	// a concurrent writer.
	ErrPreconditionFailed = errors.New("object precondition failed")
)

// Object is the content of a stored object together with the generation it
// was read at.
type Object struct {
	Data       []byte
	Generation int64
}

// WriteOptions controls how an object is written.
type WriteOptions struct {
	ContentType string

	// IfGenerationMatch makes the write succeed only if the live object is
	// still at this generation.
	IfGenerationMatch int64

	// IfDoesNotExist makes the write succeed only if no live object exists.
	IfDoesNotExist bool
}

// ObjectStore provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type ObjectStore interface {
	// ReadObject returns the object content, or ErrObjectNotFound.
	ReadObject(ctx context.Context, bucket, key string) (*Object, error)

	// WriteObject replaces the object content.
	WriteObject(ctx context.Context, bucket, key string, data []byte, opts WriteOptions) error
}
