package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// FSStore is an ObjectStore backed by a sandboxed local directory.
// Objects become visible atomically when their sink completes; metadata is
// stored in a sidecar JSON file next to the object.
type FSStore struct {
	sandbox *Sandbox
}

// NewFSStore creates an FSStore rooted at baseDir.
func NewFSStore(baseDir string) (*FSStore, error) {
	sandbox, err := NewSandbox(baseDir)
	if err != nil {
		return nil, fmt.Errorf("creating sandbox: %w", err)
	}
	return &FSStore{sandbox: sandbox}, nil
}

// BaseDir returns the store's root directory.
func (s *FSStore) BaseDir() string {
	return s.sandbox.BaseDir()
}

// Download copies the object at key into destPath.
func (s *FSStore) Download(ctx context.Context, key, destPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := s.sandbox.Open(key)
	if err != nil {
		return fmt.Errorf("opening object %s: %w", key, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}

	_, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if copyErr != nil {
		os.Remove(destPath)
		return fmt.Errorf("copying object %s: %w", key, copyErr)
	}
	if closeErr != nil {
		os.Remove(destPath)
		return fmt.Errorf("closing destination: %w", closeErr)
	}
	return nil
}

// OpenWrite opens a sink that stages bytes in a hidden temp file and
// publishes them atomically on Complete.
func (s *FSStore) OpenWrite(ctx context.Context, key, contentType string, metadata map[string]string) (WriteSink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tmp, err := s.sandbox.CreateTempIn(key)
	if err != nil {
		return nil, fmt.Errorf("staging object %s: %w", key, err)
	}

	return &fsSink{
		store:       s,
		key:         key,
		contentType: contentType,
		metadata:    metadata,
		tmp:         tmp,
	}, nil
}

// Exists reports whether an object is present at key.
func (s *FSStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.sandbox.Exists(key)
}

// Delete removes the object at key and its metadata sidecar, if any.
func (s *FSStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.sandbox.Remove(key); err != nil {
		return err
	}
	// Sidecar is best-effort; it may not exist.
	_ = s.sandbox.Remove(metaKey(key))
	return nil
}

func metaKey(key string) string {
	return key + ".meta.json"
}

// fsSink implements WriteSink over a staged temp file.
type fsSink struct {
	store       *FSStore
	key         string
	contentType string
	metadata    map[string]string

	mu        sync.Mutex
	tmp       *os.File
	closed    bool
	completed bool
	aborted   bool
}

func (w *fsSink) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.aborted {
		return 0, fmt.Errorf("write to aborted sink for %s", w.key)
	}
	if w.closed {
		return 0, fmt.Errorf("write to closed sink for %s", w.key)
	}
	return w.tmp.Write(p)
}

// Close signals the producer is done writing. The object is not yet visible.
func (w *fsSink) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *fsSink) closeLocked() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.tmp.Sync(); err != nil {
		w.tmp.Close()
		return fmt.Errorf("syncing staged object %s: %w", w.key, err)
	}
	return w.tmp.Close()
}

// Complete publishes the staged bytes, making the object visible.
func (w *fsSink) Complete(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.aborted {
		return fmt.Errorf("completing aborted sink for %s", w.key)
	}
	if w.completed {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := w.closeLocked(); err != nil {
		return err
	}

	if err := w.store.sandbox.Publish(w.tmp.Name(), w.key); err != nil {
		return fmt.Errorf("publishing object %s: %w", w.key, err)
	}
	w.completed = true

	if len(w.metadata) > 0 || w.contentType != "" {
		w.writeSidecar()
	}
	return nil
}

// writeSidecar records content type and metadata next to the object.
// Failures are swallowed; the object itself is already published.
func (w *fsSink) writeSidecar() {
	doc := map[string]any{"content_type": w.contentType}
	if len(w.metadata) > 0 {
		doc["metadata"] = w.metadata
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return
	}

	tmp, err := w.store.sandbox.CreateTempIn(metaKey(w.key))
	if err != nil {
		return
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return
	}
	_ = w.store.sandbox.Publish(tmp.Name(), metaKey(w.key))
}

// Abort discards the staged bytes. A no-op after Complete.
func (w *fsSink) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.completed || w.aborted {
		return nil
	}
	w.aborted = true
	if !w.closed {
		w.closed = true
		w.tmp.Close()
	}
	return os.Remove(w.tmp.Name())
}
