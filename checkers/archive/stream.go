package archive

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"

	"github.com/Hellohistory/ErrorFile/checkers"
	"github.com/Hellohistory/ErrorFile/fileio"
	"github.com/Hellohistory/ErrorFile/report"
)

// fastProbeBytes is how much a fast check decompresses.
const fastProbeBytes = 1024

type codec struct {
	name  string
	magic []byte
	open  func(io.Reader) (io.Reader, error)
}

var (
	gzipCodec = codec{
		name:  "gzip",
		magic: []byte{0x1F, 0x8B},
		open: func(r io.Reader) (io.Reader, error) {
			return gzip.NewReader(r)
		},
	}
	bzip2Codec = codec{
		name:  "bzip2",
		magic: []byte("BZh"),
		open: func(r io.Reader) (io.Reader, error) {
			return bzip2.NewReader(r), nil
		},
	}
	xzCodec = codec{
		name:  "xz",
		magic: []byte{0xFD, '7', 'z', 'X', 'Z', 0x00},
		open: func(r io.Reader) (io.Reader, error) {
			return xz.NewReader(r)
		},
	}
	codecs = []codec{gzipCodec, bzip2Codec, xzCodec}
)

// sniff picks the codec whose magic opens header, if any.
func sniff(header []byte) (codec, bool) {
	for _, c := range codecs {
		if bytes.HasPrefix(header, c.magic) {
			return c, true
		}
	}
	return codec{}, false
}

func streamChecker(c codec) func(string, report.Mode) report.Finding {
	return func(path string, mode report.Mode) report.Finding {
		return checkStream(path, mode, c)
	}
}

// checkStream decompresses the first KiB in fast mode and the whole stream
// in deep mode; the trailing checksum is only verified at the end.
func checkStream(path string, mode report.Mode, c codec) report.Finding {
	f, err := fileio.OpenSequential(path)
	if err != nil {
		return checkers.IOFail(err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	head, _ := br.Peek(len(c.magic))
	if !bytes.Equal(head, c.magic) {
		return checkers.Invalid("missing "+c.name+" magic", nil)
	}
	r, err := c.open(br)
	if err != nil {
		return checkers.Corrupt(c.name+" header", err)
	}
	if mode == report.ModeFast {
		if _, err := io.CopyN(io.Discard, r, fastProbeBytes); err != nil && err != io.EOF {
			return checkers.Corrupt(c.name+" stream", err)
		}
		return report.Pass(c.name + " stream opens")
	}
	n, err := drain(r)
	if err != nil {
		return checkers.Corrupt(c.name+" stream", err)
	}
	return report.Pass(fmt.Sprintf("%s stream verified (%d bytes)", c.name, n))
}
