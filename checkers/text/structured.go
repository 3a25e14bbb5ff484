package text

import (
	"bufio"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/Hellohistory/ErrorFile/checkers"
	"github.com/Hellohistory/ErrorFile/report"
)

// FastRecordLimit bounds how many NDJSON records or CSV rows fast mode reads.
const FastRecordLimit = 200

// CheckJSON requires exactly one JSON value.
func CheckJSON(path string, _ report.Mode) report.Finding {
	data, f, ok := readText(path, 0)
	if !ok {
		return f
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return checkers.Invalid("JSON syntax error", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return checkers.Invalid(fmt.Sprintf("unexpected data after JSON value at offset %d", dec.InputOffset()), err)
	}
	return report.Pass("JSON well-formed")
}

// CheckNDJSON requires every non-blank line to be a JSON value and at least
// one record overall. Fast mode stops after FastRecordLimit records.
func CheckNDJSON(path string, mode report.Mode) report.Finding {
	f, err := os.Open(path)
	if err != nil {
		return checkers.IOFail(err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)
	records := 0
	for line := 1; ; line++ {
		raw, err := r.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return checkers.IOFail(err)
		}
		if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 {
			if !json.Valid(trimmed) {
				return checkers.Invalid(fmt.Sprintf("line %d is not a JSON value", line), nil)
			}
			records++
			if mode == report.ModeFast && records >= FastRecordLimit {
				break
			}
		}
		if err != nil {
			break
		}
	}
	if records == 0 {
		return checkers.Invalid("NDJSON file has no records", nil)
	}
	return report.Pass(fmt.Sprintf("NDJSON well-formed (%d records)", records))
}

// CheckXML walks every token with a strict decoder and requires a single
// root element.
func CheckXML(path string, _ report.Mode) report.Finding {
	f, err := os.Open(path)
	if err != nil {
		return checkers.IOFail(err)
	}
	defer f.Close()

	dec := xml.NewDecoder(bufio.NewReader(f))
	depth, roots := 0, 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return checkers.Invalid("XML syntax error", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
				if roots > 1 {
					return checkers.Invalid(fmt.Sprintf("second root element <%s> at line %d", t.Name.Local, line(dec)), nil)
				}
			}
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 0 && len(bytes.TrimSpace(t)) > 0 {
				return checkers.Invalid(fmt.Sprintf("text outside the root element at line %d", line(dec)), nil)
			}
		}
	}
	if roots == 0 {
		return checkers.Invalid("XML document has no root element", nil)
	}
	return report.Pass("XML well-formed")
}

func line(dec *xml.Decoder) int {
	l, _ := dec.InputPos()
	return l
}

// CheckYAML parses every document in the stream. Each document must have a
// mapping or sequence at its root.
func CheckYAML(path string, _ report.Mode) report.Finding {
	data, f, ok := readText(path, 0)
	if !ok {
		return f
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	docs := 0
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return checkers.Invalid("YAML syntax error", err)
		}
		docs++
		if len(doc.Content) == 0 {
			continue
		}
		switch root := doc.Content[0]; root.Kind {
		case yaml.MappingNode, yaml.SequenceNode:
		default:
			return checkers.Invalid(fmt.Sprintf("YAML document %d is a bare scalar at line %d", docs, root.Line), nil)
		}
	}
	if docs == 0 {
		return checkers.Invalid("YAML file has no documents", nil)
	}
	return report.Pass(fmt.Sprintf("YAML well-formed (%d documents)", docs))
}

// CheckTOML decodes the whole document.
func CheckTOML(path string, _ report.Mode) report.Finding {
	data, f, ok := readText(path, 0)
	if !ok {
		return f
	}
	var doc map[string]any
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		var perr toml.ParseError
		if errors.As(err, &perr) {
			return checkers.Invalid(fmt.Sprintf("TOML syntax error at line %d", perr.Position.Line), err)
		}
		return checkers.Invalid("TOML syntax error", err)
	}
	return report.Pass(fmt.Sprintf("TOML well-formed (%d keys)", len(md.Keys())))
}

// CheckINI loads the file and requires every key to live in a section.
func CheckINI(path string, _ report.Mode) report.Finding {
	if _, f, ok := readText(path, 0); !ok {
		return f
	}
	cfg, err := ini.LoadSources(ini.LoadOptions{}, path)
	if err != nil {
		return checkers.Invalid("INI syntax error", err)
	}
	if keys := cfg.Section(ini.DefaultSection).KeyStrings(); len(keys) > 0 {
		return checkers.Invalid(fmt.Sprintf("key %q appears before any section header", keys[0]), nil)
	}
	return report.Pass(fmt.Sprintf("INI well-formed (%d sections)", len(cfg.SectionStrings())-1))
}
