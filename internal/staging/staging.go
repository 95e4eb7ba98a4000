// Package staging writes fetched receipt files to private local paths and
// removes them once an ingestion is done.
package staging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/dvloznov/flowrunner/internal/receipt"
)

const (
	// DefaultSuffix is used when the remote path carries no extension.
	DefaultSuffix = ".bin"

	filePattern = "receipt-*"
)

// SuffixFor returns the extension of a remote path, or DefaultSuffix.
func SuffixFor(remotePath string) string {
	if ext := path.Ext(remotePath); ext != "" {
		return ext
	}
	return DefaultSuffix
}

// WriteFile copies r into a new uniquely named file in dir (os.TempDir when
// empty). A partially written file is removed before an error is returned.
// Failures reading r are receipt.ErrRemote; failures on the local file are
// receipt.ErrLocalIO.
func WriteFile(dir, suffix string, r io.Reader) (string, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", fmt.Errorf("%w: create staging dir: %v", receipt.ErrLocalIO, err)
		}
	}

	f, err := os.CreateTemp(dir, filePattern+suffix)
	if err != nil {
		return "", fmt.Errorf("%w: create staging file: %v", receipt.ErrLocalIO, err)
	}

	src := &sourceReader{r: r}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(f.Name())
		if src.err != nil {
			return "", fmt.Errorf("%w: read remote content: %v", receipt.ErrRemote, src.err)
		}
		return "", fmt.Errorf("%w: write staging file: %v", receipt.ErrLocalIO, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("%w: close staging file: %v", receipt.ErrLocalIO, err)
	}

	return f.Name(), nil
}

// Remove deletes a staged file. A file that is already gone is not an error.
func Remove(p string) error {
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove staged file: %v", receipt.ErrLocalIO, err)
	}
	return nil
}

// sourceReader remembers the first read error so a broken download can be
// told apart from a failing disk.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF && s.err == nil {
		s.err = err
	}
	return n, err
}
