package fileutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/swarmcrawl/crawler/pkg/failure"
)

// EnsureDir check if a given directory plus the following path exist, then create one if not
func EnsureDir(dir string, path ...string) failure.ClassifiedError {
	targetPath := []string{dir}
	targetPath = append(targetPath, path...)

	assetsDir := filepath.Join(targetPath...)
	if err := os.MkdirAll(assetsDir, 0755); err != nil {
		return &FileError{
			Message:   fmt.Sprintf("%v", err),
			Retryable: false,
			Cause:     ErrCausePathError,
		}
	}
	return nil
}

// AtomicWriteFile writes data to path by writing to a temp file in the same
// directory and renaming over the destination, so concurrent readers never
// observe a partially written file.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) failure.ClassifiedError {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &FileError{Message: err.Error(), Retryable: false, Cause: ErrCausePathError}
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return &FileError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteError}
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &FileError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteError}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &FileError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteError}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &FileError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteError}
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return &FileError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteError}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return &FileError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteError}
	}
	return nil
}

// AppendFile opens path for appending (creating it and any parent
// directories if necessary), writes data, and returns the byte offset at
// which the write started — the caller needs this offset to record a
// frontier entry's position in the file.
func AppendFile(path string, data []byte) (int64, failure.ClassifiedError) {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return 0, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, &FileError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteError}
	}
	defer f.Close()

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, &FileError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteError}
	}

	if _, err := f.Write(data); err != nil {
		return 0, &FileError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteError}
	}

	return offset, nil
}
