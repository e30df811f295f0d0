package service

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"
)

type writtenFile struct {
	size   int64
	digest []byte
}

// countingWriter counts the bytes passed through it
type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

// writeFileAtomic writes path through a temporary file in the same directory,
// syncs it and renames it into place. On failure the temporary file is
// removed and path is left as it was.
func writeFileAtomic(path string, write func(w io.Writer) error) (written writtenFile, err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return written, fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	hash, err := blake2b.New256(nil)
	if err != nil {
		return written, err
	}
	counter := &countingWriter{}

	if err := write(io.MultiWriter(tmp, hash, counter)); err != nil {
		return written, err
	}
	if err := tmp.Sync(); err != nil {
		return written, fmt.Errorf("failed to sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return written, fmt.Errorf("failed to close: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return written, fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return written, fmt.Errorf("failed to move into place: %w", err)
	}

	written.size = counter.n
	written.digest = hash.Sum(nil)
	return written, nil
}
