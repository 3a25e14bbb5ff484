package text

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/mail"

	"golang.org/x/net/html"

	"github.com/Hellohistory/ErrorFile/checkers"
	"github.com/Hellohistory/ErrorFile/fileio"
	"github.com/Hellohistory/ErrorFile/report"
)

var rtfMagic = []byte(`{\rtf`)

// CheckHTML tokenizes the document and requires at least one start tag.
func CheckHTML(path string, mode report.Mode) report.Finding {
	limit := int64(PlainTextLimit)
	if mode == report.ModeDeep {
		limit = 0
	}
	data, f, ok := readText(path, limit)
	if !ok {
		return f
	}
	z := html.NewTokenizer(bytes.NewReader(data))
	tags := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return checkers.Invalid("HTML tokenizer error", err)
			}
			break
		}
		if tt == html.StartTagToken || tt == html.SelfClosingTagToken {
			tags++
		}
	}
	if tags == 0 {
		return checkers.Invalid("HTML has no tags", nil)
	}
	return report.Pass(fmt.Sprintf("HTML parsed (%d start tags)", tags))
}

// CheckEML parses the RFC 5322 header block, which must not be empty.
func CheckEML(path string, _ report.Mode) report.Finding {
	f, err := fileio.OpenSequential(path)
	if err != nil {
		return checkers.IOFail(err)
	}
	defer f.Close()

	msg, err := mail.ReadMessage(f)
	if err != nil {
		return checkers.Invalid("mail header is malformed", err)
	}
	if len(msg.Header) == 0 {
		return checkers.Invalid("mail has no headers", nil)
	}
	return report.Pass(fmt.Sprintf("mail parsed (%d header fields)", len(msg.Header)))
}

// CheckRTF requires the {\rtf header. Deep mode also requires the groups to
// balance, with the outermost group closing the document.
func CheckRTF(path string, mode report.Mode) report.Finding {
	if mode == report.ModeFast {
		head, err := fileio.ReadHeader(path, len(rtfMagic))
		if err != nil {
			return checkers.IOFail(err)
		}
		if !bytes.Equal(head, rtfMagic) {
			return checkers.Invalid("RTF header is missing", nil)
		}
		return report.Pass("RTF header valid")
	}

	data, err := fileio.ReadFile(path, 0)
	if err != nil {
		return checkers.IOFail(err)
	}
	if !bytes.HasPrefix(data, rtfMagic) {
		return checkers.Invalid("RTF header is missing", nil)
	}
	if err := rtfGroups(data); err != nil {
		return report.FailErr("RTF group structure is broken", err, report.TagCorrupted)
	}
	return report.Pass("RTF groups balanced")
}

func rtfGroups(data []byte) error {
	depth := 0
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return fmt.Errorf("unmatched } at offset %d", i)
			}
			if depth == 0 {
				if rest := bytes.Trim(data[i+1:], "\x00 \t\r\n"); len(rest) > 0 {
					return fmt.Errorf("%d bytes after the document group", len(rest))
				}
				return nil
			}
		}
	}
	return fmt.Errorf("document ends inside %d open groups: %w", depth, io.ErrUnexpectedEOF)
}
