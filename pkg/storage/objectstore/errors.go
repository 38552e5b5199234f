package objectstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a missing object or bucket.
	ErrNotFound = errors.New("object not found")
	// ErrUnavailable reports any network or service failure.
	ErrUnavailable = errors.New("object store unavailable")
)

// Error records the failed operation. errors.Is matches Kind.
type Error struct {
	Op     string
	Bucket string
	Key    string
	Kind   error
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Kind)
	}
	return fmt.Sprintf("%s %s/%s: %v: %v", e.Op, e.Bucket, e.Key, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op, bucket, key string, kind, err error) *Error {
	return &Error{Op: op, Bucket: bucket, Key: key, Kind: kind, Err: err}
}
