// Package fileio holds the read paths shared by the prefilter and the format
// checkers.
package fileio

import (
	"errors"
	"io"
	"os"

	"golang.org/x/exp/mmap"
)

const (
	defaultChunkSize = 256 * 1024
	mmapMinSize      = 128 * 1024
)

var openMmapReader = mmap.Open

// ReadHeader returns up to n bytes from the start of path. A short file is
// not an error.
func ReadHeader(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:read], nil
}

// ReadTail returns up to n bytes from the end of path.
func ReadTail(path string, n int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if n > size {
		n = size
	}
	buf := make([]byte, n)
	if _, err := f.ReadAt(buf, size-n); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf, nil
}

// ReadFile returns at most maxSize bytes of path; maxSize <= 0 reads
// everything. Large files go through mmap and fall back to chunked reads.
func ReadFile(path string, maxSize int64) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() >= mmapMinSize {
		content, err := readMmap(path, info.Size(), maxSize)
		if err == nil {
			return content, nil
		}
	}
	return readStream(path, info.Size(), maxSize)
}

func readMmap(path string, size, maxSize int64) ([]byte, error) {
	r, err := openMmapReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	readSize := int64(r.Len())
	if readSize > size {
		readSize = size
	}
	if maxSize > 0 && readSize > maxSize {
		readSize = maxSize
	}
	if readSize <= 0 {
		return []byte{}, nil
	}
	buf := make([]byte, readSize)
	if _, err := r.ReadAt(buf, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf, nil
}

func readStream(path string, sizeHint, maxSize int64) ([]byte, error) {
	f, err := OpenSequential(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	capHint := sizeHint
	if maxSize > 0 && capHint > maxSize {
		capHint = maxSize
	}
	if capHint < 0 {
		capHint = 0
	}
	return readChunks(f, make([]byte, 0, capHint), maxSize)
}

func readChunks(r io.Reader, content []byte, maxSize int64) ([]byte, error) {
	buffer := make([]byte, defaultChunkSize)
	var total int64
	for {
		n, err := r.Read(buffer)
		if n > 0 {
			chunk := buffer[:n]
			if maxSize > 0 && total+int64(n) > maxSize {
				chunk = chunk[:max(int(maxSize-total), 0)]
			}
			content = append(content, chunk...)
			total += int64(len(chunk))
			if maxSize > 0 && total >= maxSize {
				break
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
	}
	return content, nil
}

// ReaderAt is a random-access view of a whole file.
type ReaderAt interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

type mmapReaderAt struct{ *mmap.ReaderAt }

func (m mmapReaderAt) Size() int64 { return int64(m.Len()) }

type fileReaderAt struct {
	*os.File
	size int64
}

func (f fileReaderAt) Size() int64 { return f.size }

// OpenReaderAt maps path into memory, falling back to positional file reads
// when mapping is not possible (empty files, special files).
func OpenReaderAt(path string) (ReaderAt, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > 0 {
		if r, err := openMmapReader(path); err == nil {
			return mmapReaderAt{r}, nil
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return fileReaderAt{File: f, size: info.Size()}, nil
}

// OpenSequential opens path and hints the kernel that it will be read front
// to back.
func OpenSequential(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	adviseSequential(f)
	return f, nil
}
