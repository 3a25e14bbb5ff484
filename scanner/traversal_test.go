package scanner

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/Hellohistory/ErrorFile/utils"
)

func TestCollectFiles(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"b.pdf", "a.txt", "sub/c.pdf", "sub/big.pdf", ".hidden/d.pdf", "skip/e.pdf"} {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		size := 10
		if filepath.Base(rel) == "big.pdf" {
			size = 4096
		}
		if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	loose := filepath.Join(t.TempDir(), "does-not-exist.pdf")

	got, err := CollectFiles(context.Background(), []string{root, loose}, CollectOptions{
		Filter:      utils.NewPathFilter([]string{"*.pdf"}, []string{"skip"}, true),
		MaxFileSize: 1024,
	})
	if err != nil {
		t.Fatalf("CollectFiles: %v", err)
	}
	want := []string{filepath.Join(root, "b.pdf"), filepath.Join(root, "sub", "c.pdf"), loose}
	if !slices.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestCollectFilesCancelled(t *testing.T) {
	root := t.TempDir()
	os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := CollectFiles(ctx, []string{root}, CollectOptions{}); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestCollectFilesFollowsContainedSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	target := filepath.Join(root, "data.json")
	escaped := filepath.Join(outside, "secret.json")
	os.WriteFile(target, []byte("{}"), 0o644)
	os.WriteFile(escaped, []byte("{}"), 0o644)
	if err := os.Symlink(target, filepath.Join(root, "link.json")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if err := os.Symlink(escaped, filepath.Join(root, "escape.json")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	got, err := CollectFiles(context.Background(), []string{root}, CollectOptions{})
	if err != nil {
		t.Fatalf("CollectFiles: %v", err)
	}
	if !slices.Equal(got, []string{target}) {
		t.Fatalf("symlinks followed without opt-in: %v", got)
	}

	got, err = CollectFiles(context.Background(), []string{root}, CollectOptions{FollowSymlinks: true})
	if err != nil {
		t.Fatalf("CollectFiles: %v", err)
	}
	want := []string{target, filepath.Join(root, "link.json")}
	if !slices.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
