package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsPathWithin(t *testing.T) {
	root := t.TempDir()
	child := filepath.Join(root, "a", "b.txt")
	outside := filepath.Join(filepath.Dir(root), "outside.txt")

	if !IsPathWithin(child, []string{root}) {
		t.Fatalf("expected %s to be within %s", child, root)
	}
	if IsPathWithin(outside, []string{root}) {
		t.Fatalf("did not expect %s to be within %s", outside, root)
	}
}

func TestIsPathWithinMultipleRoots(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	inB := filepath.Join(rootB, "nested", "file.txt")
	if !IsPathWithin(inB, []string{rootA, rootB}) {
		t.Fatal("expected path under second root to be contained")
	}
}

func TestIsPathWithinResolvesSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(t.TempDir(), "target.bin")
	os.WriteFile(outside, []byte("x"), 0o644)
	link := filepath.Join(root, "link.bin")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if IsPathWithin(link, []string{root}) {
		t.Fatal("symlink escaping the root should not be contained")
	}
}
