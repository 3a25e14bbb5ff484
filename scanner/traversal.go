package scanner

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Hellohistory/ErrorFile/logger"
	"github.com/Hellohistory/ErrorFile/utils"
)

type walker interface {
	Walk(ctx context.Context, startPath string, fn fs.WalkDirFunc) error
}

// stackWalker is a depth-first walk with an explicit stack. Entries are
// visited in lexical order.
type stackWalker struct{}

func (stackWalker) Walk(ctx context.Context, startPath string, fn fs.WalkDirFunc) error {
	info, err := os.Stat(startPath)
	if err != nil {
		return fn(startPath, nil, err)
	}
	type item struct {
		path  string
		entry fs.DirEntry
	}
	stack := []item{{path: startPath, entry: fs.FileInfoToDirEntry(info)}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := fn(current.path, current.entry, nil); err != nil {
			if errors.Is(err, fs.SkipDir) {
				continue
			}
			return err
		}
		if !current.entry.IsDir() {
			continue
		}

		entries, err := os.ReadDir(current.path)
		if err != nil {
			if ferr := fn(current.path, current.entry, err); ferr != nil && !errors.Is(ferr, fs.SkipDir) {
				return ferr
			}
			continue
		}
		for i := len(entries) - 1; i >= 0; i-- {
			stack = append(stack, item{
				path:  filepath.Join(current.path, entries[i].Name()),
				entry: entries[i],
			})
		}
	}
	return nil
}

// CollectOptions filters CollectFiles.
type CollectOptions struct {
	Filter *utils.PathFilter
	// MaxFileSize skips larger files when positive.
	MaxFileSize int64
	// FollowSymlinks includes symlinked regular files whose target
	// resolves under one of the roots. Symlinked directories are never
	// descended.
	FollowSymlinks bool
}

// CollectFiles expands roots into file paths. A root that is not a
// directory is kept as given, even when it does not exist, so that the
// batch reports it. Directories are walked recursively through the filter.
func CollectFiles(ctx context.Context, roots []string, opts CollectOptions) ([]string, error) {
	var out []string
	w := stackWalker{}
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			out = append(out, root)
			continue
		}
		err = w.Walk(ctx, root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				logger.Warnf("Failed to access %s: %v", path, err)
				return nil
			}
			if d.IsDir() {
				if path != root && !opts.Filter.Descend(path) {
					return fs.SkipDir
				}
				return nil
			}
			if !opts.Filter.Include(path) {
				return nil
			}
			info, ok := regularFile(path, d, roots, opts.FollowSymlinks)
			if !ok {
				return nil
			}
			if opts.MaxFileSize > 0 {
				if info.Size() > opts.MaxFileSize {
					logger.Debugf("Skipping %s: %d bytes exceeds the size limit", path, info.Size())
					return nil
				}
			}
			out = append(out, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func regularFile(path string, d fs.DirEntry, roots []string, follow bool) (fs.FileInfo, bool) {
	if d.Type().IsRegular() {
		info, err := d.Info()
		return info, err == nil
	}
	if !follow || d.Type()&fs.ModeSymlink == 0 {
		return nil, false
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, false
	}
	if !utils.IsPathWithin(path, roots) {
		logger.Debugf("Skipping %s: symlink target leaves the scanned roots", path)
		return nil, false
	}
	return info, true
}
