package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/swarmcrawl/crawler/internal/metadata"
	"github.com/swarmcrawl/crawler/pkg/failure"
	"github.com/swarmcrawl/crawler/pkg/fileutil"
)

/*
Responsibilities
- Persist extracted page text under content/<xx>/<sha256(url)>.txt
- Write atomically (write-temp-then-rename) so a reader never observes
  a partial file
- Derive a stable, deterministic path from the source URL alone
*/

// ContentStore is the filesystem half of extracted-page persistence:
// content/<xx>/<sha256-of-url>.txt, where <xx> is the hash's first two hex
// characters, keeping per-directory entry counts bounded.
type ContentStore struct {
	dataDir      string
	metadataSink metadata.MetadataSink
}

func NewContentStore(dataDir string, metadataSink metadata.MetadataSink) ContentStore {
	return ContentStore{dataDir: dataDir, metadataSink: metadataSink}
}

// Path returns the deterministic content path for the given source URL.
func (s *ContentStore) Path(sourceURL string) string {
	digest := sha256.Sum256([]byte(sourceURL))
	hexDigest := hex.EncodeToString(digest[:])
	return filepath.Join(s.dataDir, "content", hexDigest[:2], hexDigest+".txt")
}

// Write atomically persists text at the path derived from sourceURL.
func (s *ContentStore) Write(sourceURL string, text []byte) (WriteResult, failure.ClassifiedError) {
	path := s.Path(sourceURL)

	if err := fileutil.AtomicWriteFile(path, text, 0644); err != nil {
		storageErr := s.wrapFileError(err, path)
		s.recordError(storageErr, sourceURL)
		return WriteResult{}, storageErr
	}

	contentHash := sha256.Sum256(text)
	result := NewWriteResult(strings.TrimSuffix(filepath.Base(path), ".txt"), path, hex.EncodeToString(contentHash[:]))

	if s.metadataSink != nil {
		s.metadataSink.RecordArtifact(
			metadata.ArtifactContent,
			path,
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrWritePath, path),
				metadata.NewAttr(metadata.AttrURL, sourceURL),
			},
		)
	}
	return result, nil
}

func (s *ContentStore) wrapFileError(err failure.ClassifiedError, path string) *StorageError {
	var fileErr *fileutil.FileError
	if errors.As(err, &fileErr) {
		cause := ErrCauseWriteFailure
		if fileErr.Cause == fileutil.ErrCausePathError {
			cause = ErrCausePathError
		}
		return &StorageError{
			Message:   err.Error(),
			Retryable: fileErr.Retryable,
			Cause:     cause,
			Path:      path,
		}
	}
	return &StorageError{Message: err.Error(), Retryable: false, Cause: ErrCauseWriteFailure, Path: path}
}

func (s *ContentStore) recordError(err *StorageError, sourceURL string) {
	if s.metadataSink == nil {
		return
	}
	s.metadataSink.RecordError(
		time.Now(),
		"storage",
		"ContentStore.Write",
		mapStorageErrorToMetadataCause(err),
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, sourceURL),
			metadata.NewAttr(metadata.AttrWritePath, err.Path),
		},
	)
}
