package staging

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dvloznov/flowrunner/internal/receipt"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestSuffixFor(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"photos/file_12.jpg", ".jpg"},
		{"documents/struk.pdf", ".pdf"},
		{"documents/noext", DefaultSuffix},
		{"", DefaultSuffix},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SuffixFor(tt.in); got != tt.want {
				t.Errorf("SuffixFor(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWriteFile_UniqueNames(t *testing.T) {
	dir := t.TempDir()

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		p, err := WriteFile(dir, ".jpg", strings.NewReader("data"))
		if err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		if seen[p] {
			t.Fatalf("duplicate staged path %s", p)
		}
		seen[p] = true
		if filepath.Ext(p) != ".jpg" {
			t.Errorf("staged path %s has wrong suffix", p)
		}
	}
}

func TestWriteFile_RemovesPartialFile(t *testing.T) {
	dir := t.TempDir()

	_, err := WriteFile(dir, ".bin", io.MultiReader(strings.NewReader("partial"), failingReader{}))
	if !errors.Is(err, receipt.ErrRemote) {
		t.Fatalf("expected ErrRemote for a broken source, got %v", err)
	}
	if errors.Is(err, receipt.ErrLocalIO) {
		t.Errorf("read failure must not be reported as local I/O: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected partial file to be removed, found %d entries", len(entries))
	}
}

func TestWriteFile_LocalFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, err := WriteFile(blocker, ".bin", strings.NewReader("data"))
	if !errors.Is(err, receipt.ErrLocalIO) {
		t.Fatalf("expected ErrLocalIO, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	p, err := WriteFile(dir, ".bin", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if err := Remove(p); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file still exists after Remove")
	}
	if err := Remove(p); err != nil {
		t.Errorf("second Remove should be a no-op, got %v", err)
	}
}
