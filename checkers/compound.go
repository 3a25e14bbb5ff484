package checkers

import (
	"errors"
	"fmt"
	"io"

	"github.com/richardlehane/mscfb"

	"github.com/Hellohistory/ErrorFile/fileio"
)

// Stream is one stream of an OLE2 compound file.
type Stream struct {
	Name string
	Path []string
	Size int64
}

// WalkCompound visits every stream of the compound file at path in
// directory order. visit gets a reader over the stream contents; whatever it
// leaves unread is drained so that sector chains are followed to the end.
func WalkCompound(path string, visit func(s Stream, r io.Reader) error) error {
	ra, err := fileio.OpenReaderAt(path)
	if err != nil {
		return err
	}
	defer ra.Close()

	doc, err := mscfb.New(ra)
	if err != nil {
		return err
	}
	for {
		entry, err := doc.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		s := Stream{Name: entry.Name, Path: entry.Path, Size: entry.Size}
		if visit != nil {
			if err := visit(s, entry); err != nil {
				return err
			}
		}
		if _, err := io.Copy(io.Discard, entry); err != nil {
			return fmt.Errorf("stream %s: %w", entry.Name, err)
		}
	}
}

// CompoundNames lists the entry names of a compound file without reading
// stream contents.
func CompoundNames(path string) (map[string]bool, error) {
	ra, err := fileio.OpenReaderAt(path)
	if err != nil {
		return nil, err
	}
	defer ra.Close()

	doc, err := mscfb.New(ra)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool)
	for {
		entry, err := doc.Next()
		if errors.Is(err, io.EOF) {
			return names, nil
		}
		if err != nil {
			return nil, err
		}
		names[entry.Name] = true
	}
}
