package storage

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/swarmcrawl/crawler/internal/metadata"
	"github.com/swarmcrawl/crawler/pkg/failure"
	"github.com/swarmcrawl/crawler/pkg/fileutil"
	"github.com/swarmcrawl/crawler/pkg/hashutil"
)

/*
Responsibilities
- Own the on-disk half of a domain's frontier: an append-only,
  newline-delimited "url|depth" file per domain.
- Guarantee a single process-local mutex serializes appends per domain
  (the frontier.Manager owns that mutex; this store only does the I/O).
- Keep directory fan-out bounded via a two-hex-digit shard bucket.

This package never talks to Redis; frontier_offset/frontier_size
bookkeeping is the caller's responsibility once bytes are durably on disk.
*/

// FrontierStore is the filesystem half of the frontier: one append-only
// "url|depth\n" file per domain, under a two-hex-digit bucket directory
// derived from the domain hash to cap per-directory entry counts.
type FrontierStore struct {
	dataDir      string
	metadataSink metadata.MetadataSink
}

func NewFrontierStore(dataDir string, metadataSink metadata.MetadataSink) FrontierStore {
	return FrontierStore{dataDir: dataDir, metadataSink: metadataSink}
}

// Path returns the frontier file path for domain.
func (s *FrontierStore) Path(domain string) string {
	bucket := hashutil.ShardBucket(domain)
	return filepath.Join(s.dataDir, "frontiers", bucket, domain+".frontier")
}

// Append writes "url|depth\n" for every entry in a single append, and
// returns the byte offset the batch started at and the number of bytes
// written — the caller uses these to keep frontier_size in step with the
// durable file size.
func (s *FrontierStore) Append(domain string, entries []FrontierEntry) (startOffset int64, bytesWritten int64, err failure.ClassifiedError) {
	var buf bytes.Buffer
	for _, e := range entries {
		fmt.Fprintf(&buf, "%s|%d\n", e.URL, e.Depth)
	}

	path := s.Path(domain)
	offset, appendErr := fileutil.AppendFile(path, buf.Bytes())
	if appendErr != nil {
		storageErr := s.wrapFileError(appendErr, path)
		s.recordError("FrontierStore.Append", storageErr, domain)
		return 0, 0, storageErr
	}
	return offset, int64(buf.Len()), nil
}

// ReadNext reads the single "url|depth" record starting at offset and
// returns it along with the offset immediately past it (offset + bytes
// consumed, including the trailing newline). Callers compare the returned
// offset against frontier_size to detect "domain drained".
func (s *FrontierStore) ReadNext(domain string, offset int64) (FrontierEntry, int64, failure.ClassifiedError) {
	path := s.Path(domain)
	f, openErr := os.Open(path)
	if openErr != nil {
		storageErr := &StorageError{
			Message:   openErr.Error(),
			Retryable: false,
			Cause:     ErrCauseReadFailure,
			Path:      path,
		}
		s.recordError("FrontierStore.ReadNext", storageErr, domain)
		return FrontierEntry{}, offset, storageErr
	}
	defer f.Close()

	if _, seekErr := f.Seek(offset, io.SeekStart); seekErr != nil {
		storageErr := &StorageError{
			Message:   seekErr.Error(),
			Retryable: false,
			Cause:     ErrCauseReadFailure,
			Path:      path,
		}
		s.recordError("FrontierStore.ReadNext", storageErr, domain)
		return FrontierEntry{}, offset, storageErr
	}

	line, readErr := bufio.NewReader(f).ReadString('\n')
	if readErr != nil && !errors.Is(readErr, io.EOF) {
		storageErr := &StorageError{
			Message:   readErr.Error(),
			Retryable: false,
			Cause:     ErrCauseReadFailure,
			Path:      path,
		}
		s.recordError("FrontierStore.ReadNext", storageErr, domain)
		return FrontierEntry{}, offset, storageErr
	}
	if line == "" {
		return FrontierEntry{}, offset, &StorageError{
			Message:   "no record at offset",
			Retryable: false,
			Cause:     ErrCauseReadFailure,
			Path:      path,
		}
	}

	entry, parseErr := parseFrontierLine(line)
	if parseErr != nil {
		return FrontierEntry{}, offset, &StorageError{
			Message:   parseErr.Error(),
			Retryable: false,
			Cause:     ErrCauseReadFailure,
			Path:      path,
		}
	}

	return entry, offset + int64(len(line)), nil
}

// Size returns the current on-disk size of domain's frontier file, used by
// the resume reconciliation step to detect frontier_size < actual size.
func (s *FrontierStore) Size(domain string) (int64, failure.ClassifiedError) {
	path := s.Path(domain)
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		storageErr := &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseReadFailure,
			Path:      path,
		}
		s.recordError("FrontierStore.Size", storageErr, domain)
		return 0, storageErr
	}
	return info.Size(), nil
}

func parseFrontierLine(line string) (FrontierEntry, error) {
	trimmed := strings.TrimSuffix(line, "\n")
	idx := strings.LastIndex(trimmed, "|")
	if idx < 0 {
		return FrontierEntry{}, fmt.Errorf("malformed frontier line: %q", line)
	}
	depth, err := strconv.Atoi(trimmed[idx+1:])
	if err != nil {
		return FrontierEntry{}, fmt.Errorf("malformed frontier depth in line %q: %w", line, err)
	}
	return FrontierEntry{URL: trimmed[:idx], Depth: depth}, nil
}

func (s *FrontierStore) wrapFileError(err failure.ClassifiedError, path string) *StorageError {
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

func (s *FrontierStore) recordError(action string, err *StorageError, domain string) {
	if s.metadataSink == nil {
		return
	}
	s.metadataSink.RecordError(
		time.Now(),
		"storage",
		action,
		mapStorageErrorToMetadataCause(err),
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrHost, domain),
			metadata.NewAttr(metadata.AttrWritePath, err.Path),
		},
	)
}
