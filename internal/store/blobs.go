package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

// BlobPath returns the on-disk path a completed blob is served from.
func (s *Store) BlobPath(documentID types.DocumentID) string {
	return filepath.Join(s.blobsBasePath, string(documentID))
}

// BlobTempPath returns the path a blob is streamed into before the
// atomic rename into BlobPath ("writes go to
// <document_id>.tmp then atomically renamed").
func (s *Store) BlobTempPath(documentID types.DocumentID) string {
	return s.BlobPath(documentID) + ".tmp"
}

// OpenBlobWriter creates (or truncates) the temp file a blob's pieces are
// streamed into. Callers must call FinalizeBlob on success or remove the
// temp file on failure.
func (s *Store) OpenBlobWriter(documentID types.DocumentID) (*os.File, error) {
	if err := os.MkdirAll(s.blobsBasePath, 0o755); err != nil {
		return nil, fmt.Errorf("store: create blobs dir: %w", err)
	}
	f, err := os.Create(s.BlobTempPath(documentID))
	if err != nil {
		return nil, fmt.Errorf("store: open blob writer: %w", err)
	}
	return f, nil
}

// FinalizeBlob atomically renames a fully-written temp file into place.
func (s *Store) FinalizeBlob(documentID types.DocumentID) error {
	if err := os.Rename(s.BlobTempPath(documentID), s.BlobPath(documentID)); err != nil {
		return fmt.Errorf("store: finalize blob: %w", err)
	}
	return nil
}

// RemoveBlob deletes a completed blob file, the garbage_collection task's
// cleanup step for a deleted blob_v1 document. Missing files are not an error.
func (s *Store) RemoveBlob(documentID types.DocumentID) error {
	if err := os.Remove(s.BlobPath(documentID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: remove blob: %w", err)
	}
	return nil
}

// BlobExists reports whether a completed blob file is present.
func (s *Store) BlobExists(documentID types.DocumentID) bool {
	_, err := os.Stat(s.BlobPath(documentID))
	return err == nil
}
