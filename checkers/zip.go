package checkers

import (
	"archive/zip"
	"fmt"
	"io"

	"github.com/Hellohistory/ErrorFile/fileio"
)

// ZipArchive is a zip central directory read through a memory map.
type ZipArchive struct {
	*zip.Reader
	ra fileio.ReaderAt
}

func OpenZip(path string) (*ZipArchive, error) {
	ra, err := fileio.OpenReaderAt(path)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(ra, ra.Size())
	if err != nil {
		ra.Close()
		return nil, err
	}
	return &ZipArchive{Reader: zr, ra: ra}, nil
}

func (z *ZipArchive) Close() error {
	return z.ra.Close()
}

// Has reports whether the archive contains an entry named name.
func (z *ZipArchive) Has(name string) bool {
	for _, f := range z.File {
		if f.Name == name {
			return true
		}
	}
	return false
}

// ErrEntryEncrypted marks a zip member protected by traditional or AES
// encryption, which archive/zip cannot read.
type ErrEntryEncrypted struct{ Name string }

func (e ErrEntryEncrypted) Error() string {
	return fmt.Sprintf("zip entry %s is encrypted", e.Name)
}

// ReadZipEntries decompresses every member, which makes archive/zip verify
// each CRC-32. visit, when set, gets the decompressed stream instead of the
// default drain.
func (z *ZipArchive) ReadZipEntries(visit func(f *zip.File, r io.Reader) error) error {
	for _, f := range z.File {
		if f.Flags&0x1 != 0 {
			return ErrEntryEncrypted{Name: f.Name}
		}
		if f.FileInfo().IsDir() {
			continue
		}
		if err := readEntry(f, visit); err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
	}
	return nil
}

func readEntry(f *zip.File, visit func(*zip.File, io.Reader) error) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	if visit != nil {
		if err := visit(f, rc); err != nil {
			return err
		}
	}
	// Drain the remainder so the checksum is always verified.
	_, err = io.Copy(io.Discard, rc)
	return err
}
