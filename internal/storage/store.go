package storage

import (
	"context"
	"io"
)

// WriteSink is a destination for published object bytes.
//
// Closing the writer only signals that the producer is done; the object is
// not visible until Complete returns nil. A subprocess exiting with code 0
// does not imply the sink has finished flushing, so callers must await
// Complete independently of process exit.
type WriteSink interface {
	io.WriteCloser

	// Complete finalizes the upload and makes the object visible.
	Complete(ctx context.Context) error

	// Abort discards everything written so far. Safe to call after Complete;
	// it then does nothing.
	Abort() error
}

// ObjectStore is the object storage collaborator the pipeline consumes.
type ObjectStore interface {
	// Download copies the object at key into destPath on the local filesystem.
	Download(ctx context.Context, key, destPath string) error

	// OpenWrite opens a sink for a new object. Metadata travels with the
	// object where the backend supports it.
	OpenWrite(ctx context.Context, key, contentType string, metadata map[string]string) (WriteSink, error)

	// Exists reports whether an object is present at key.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the object at key.
	Delete(ctx context.Context, key string) error
}
