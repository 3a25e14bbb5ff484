// Package prefilter rejects files whose leading bytes contradict the format
// their extension claims, before any format checker runs.
package prefilter

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/h2non/filetype"

	"github.com/Hellohistory/ErrorFile/fileio"
	"github.com/Hellohistory/ErrorFile/registry"
	"github.com/Hellohistory/ErrorFile/report"
)

// HeaderSize is how many leading bytes a predicate gets to see.
const HeaderSize = 32

// Predicate reports whether header is consistent with a format.
type Predicate func(header []byte) bool

// Table maps normalized extensions to signature predicates.
type Table struct {
	predicates map[string]Predicate
}

func NewTable() *Table {
	return &Table{predicates: make(map[string]Predicate)}
}

// Set binds ext to p. Malformed extensions panic like registry registration.
func (t *Table) Set(ext string, p Predicate) {
	norm, ok := registry.NormalizeExtension(ext)
	if !ok {
		panic(fmt.Sprintf("prefilter: malformed extension %q", ext))
	}
	t.predicates[norm] = p
}

func (t *Table) Get(ext string) (Predicate, bool) {
	p, ok := t.predicates[ext]
	return p, ok
}

func (t *Table) Len() int {
	return len(t.predicates)
}

// Policy selects which extensions the prefilter may judge. An empty allowlist
// admits every extension; the denylist always wins.
type Policy struct {
	Enabled   bool
	Allowlist []string
	Denylist  []string
}

// Eligible reports whether ext may be judged under p.
func (p Policy) Eligible(ext string) bool {
	if !p.Enabled {
		return false
	}
	if contains(p.Denylist, ext) {
		return false
	}
	if len(p.Allowlist) > 0 && !contains(p.Allowlist, ext) {
		return false
	}
	return true
}

// Normalized returns p with lists lower-cased, dotted, de-duplicated and
// sorted. Unparseable entries are dropped.
func (p Policy) Normalized() Policy {
	return Policy{
		Enabled:   p.Enabled,
		Allowlist: NormalizeList(p.Allowlist),
		Denylist:  NormalizeList(p.Denylist),
	}
}

// NormalizeList canonicalises an extension list. Order and duplicates do not
// matter to a policy, so the result is sorted and unique.
func NormalizeList(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		norm, ok := registry.NormalizeExtension(item)
		if !ok {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	slices.Sort(out)
	return out
}

func contains(list []string, ext string) bool {
	for _, item := range list {
		if norm, ok := registry.NormalizeExtension(item); ok && norm == ext {
			return true
		}
	}
	return false
}

// Check judges the file at path. Only the first candidate with a predicate
// is considered; when the policy excludes it there is no verdict. The
// boolean reports whether a verdict was reached.
func (t *Table) Check(path string, candidates []string, policy Policy) (report.Finding, bool) {
	if !policy.Enabled {
		return report.Finding{}, false
	}
	ext, pred, ok := t.first(candidates)
	if !ok || !policy.Eligible(ext) {
		return report.Finding{}, false
	}
	header, err := fileio.ReadHeader(path, HeaderSize)
	if err != nil {
		return report.FailErr("could not read file header", err, report.TagIOError), true
	}
	if pred(header) {
		return report.Pass("signature matches " + ext), true
	}
	msg := "signature mismatch for " + ext
	if kind, err := filetype.Match(header); err == nil && kind != filetype.Unknown {
		msg += fmt.Sprintf(" (header looks like %s)", kind.Extension)
	}
	return report.Fail(msg, report.TagInvalidFormat, report.TagCorrupted), true
}

func (t *Table) first(candidates []string) (string, Predicate, bool) {
	for _, ext := range candidates {
		if p, ok := t.predicates[ext]; ok {
			return ext, p, true
		}
	}
	return "", nil, false
}

// Is wraps a filetype matcher by its extension name.
func Is(kind string) Predicate {
	return func(header []byte) bool {
		return filetype.Is(header, kind)
	}
}

// Prefix matches a literal byte prefix.
func Prefix(sig []byte) Predicate {
	return func(header []byte) bool {
		return bytes.HasPrefix(header, sig)
	}
}

// Any matches when at least one of preds does.
func Any(preds ...Predicate) Predicate {
	return func(header []byte) bool {
		for _, p := range preds {
			if p(header) {
				return true
			}
		}
		return false
	}
}

// OLESignature opens every OLE2 compound file (legacy Office, Outlook .msg).
var OLESignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

func isFtyp(header []byte) bool {
	return len(header) >= 8 && string(header[4:8]) == "ftyp"
}

// Default returns the built-in signature table.
func Default() *Table {
	t := NewTable()
	zip := Is("zip")
	gz := Is("gz")
	bz2 := Is("bz2")
	xz := Is("xz")
	ole := Prefix(OLESignature)

	t.Set(".pdf", Is("pdf"))
	t.Set(".png", Is("png"))
	t.Set(".jpg", Is("jpg"))
	t.Set(".jpeg", Is("jpg"))
	t.Set(".gif", Is("gif"))
	t.Set(".bmp", Is("bmp"))
	t.Set(".webp", Is("webp"))
	t.Set(".tif", Is("tif"))
	t.Set(".tiff", Is("tif"))

	for _, ext := range []string{".zip", ".docx", ".xlsx", ".pptx"} {
		t.Set(ext, zip)
	}
	t.Set(".xls", ole)
	t.Set(".msg", ole)
	t.Set(".7z", Is("7z"))
	t.Set(".rar", Is("rar"))
	t.Set(".gz", gz)
	t.Set(".tgz", gz)
	t.Set(".tar.gz", gz)
	t.Set(".bz2", bz2)
	t.Set(".tar.bz2", bz2)
	t.Set(".xz", xz)
	t.Set(".tar.xz", xz)

	t.Set(".mp3", Is("mp3"))
	t.Set(".mp4", Any(Is("mp4"), isFtyp))
	t.Set(".m4a", Any(Is("m4a"), isFtyp))
	t.Set(".flac", Is("flac"))
	t.Set(".ogg", Is("ogg"))
	t.Set(".oga", Is("ogg"))
	t.Set(".wav", Is("wav"))

	t.Set(".sqlite", Is("sqlite"))
	t.Set(".db", Is("sqlite"))
	t.Set(".rtf", Is("rtf"))
	return t
}
