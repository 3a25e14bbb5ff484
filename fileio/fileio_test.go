package fileio

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/exp/mmap"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestReadHeaderShortFile(t *testing.T) {
	path := writeTemp(t, "short.bin", []byte("abc"))
	got, err := ReadHeader(path, 32)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if string(got) != "abc" {
		t.Fatalf("unexpected header: %q", got)
	}
}

func TestReadHeaderEmptyFile(t *testing.T) {
	path := writeTemp(t, "empty.bin", nil)
	got, err := ReadHeader(path, 32)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty header, got %d bytes", len(got))
	}
}

func TestReadTail(t *testing.T) {
	path := writeTemp(t, "tail.bin", []byte("0123456789"))
	got, err := ReadTail(path, 3)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if string(got) != "789" {
		t.Fatalf("unexpected tail: %q", got)
	}
	got, err = ReadTail(path, 100)
	if err != nil || len(got) != 10 {
		t.Fatalf("unexpected tail: %q %v", got, err)
	}
}

func TestReadFileMmapAndStreamParity(t *testing.T) {
	big := bytes.Repeat([]byte("errorfile"), mmapMinSize/9+10)
	path := writeTemp(t, "big.txt", big)
	got, err := ReadFile(path, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, big) {
		t.Fatal("mmap read differs from file content")
	}
	limited, err := ReadFile(path, 100)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(limited, big[:100]) {
		t.Fatal("limited read mismatch")
	}
}

func TestReadFileFallsBackWhenMmapFails(t *testing.T) {
	orig := openMmapReader
	openMmapReader = func(string) (*mmap.ReaderAt, error) { return nil, errors.New("no mmap") }
	defer func() { openMmapReader = orig }()

	big := bytes.Repeat([]byte{'x'}, mmapMinSize+1)
	path := writeTemp(t, "fallback.txt", big)
	got, err := ReadFile(path, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != len(big) {
		t.Fatalf("unexpected length %d", len(got))
	}
}

func TestOpenReaderAt(t *testing.T) {
	path := writeTemp(t, "ra.bin", []byte("hello world"))
	r, err := OpenReaderAt(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()
	if r.Size() != 11 {
		t.Fatalf("unexpected size %d", r.Size())
	}
	buf := make([]byte, 5)
	if _, err := r.ReadAt(buf, 6); err != nil {
		t.Fatalf("readat: %v", err)
	}
	if string(buf) != "world" {
		t.Fatalf("unexpected bytes %q", buf)
	}

	empty := writeTemp(t, "empty.bin", nil)
	r2, err := OpenReaderAt(empty)
	if err != nil {
		t.Fatalf("open empty: %v", err)
	}
	defer r2.Close()
	if r2.Size() != 0 {
		t.Fatalf("unexpected size %d", r2.Size())
	}
}
