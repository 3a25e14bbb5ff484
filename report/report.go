// Package report holds the result types produced by file inspection.
package report

import "slices"

// Tag classifies the outcome of an inspection.
type Tag string

const (
	TagOK            Tag = "ok"
	TagCorrupted     Tag = "corrupted"
	TagEncrypted     Tag = "encrypted"
	TagUnsupported   Tag = "unsupported"
	TagInvalidFormat Tag = "invalid_format"
	TagIOError       Tag = "io_error"
	TagNotFound      Tag = "not_found"
	TagInvalidMode   Tag = "invalid_mode"
	TagPartial       Tag = "partial"
	TagUnknownError  Tag = "unknown_error"
)

var knownTags = []Tag{
	TagOK, TagCorrupted, TagEncrypted, TagUnsupported, TagInvalidFormat,
	TagIOError, TagNotFound, TagInvalidMode, TagPartial, TagUnknownError,
}

// Valid reports whether t belongs to the closed tag set.
func (t Tag) Valid() bool {
	return slices.Contains(knownTags, t)
}

// Mode selects how thorough a check is.
type Mode string

const (
	ModeFast Mode = "fast"
	ModeDeep Mode = "deep"
)

// ParseMode accepts exactly "fast" or "deep".
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeFast, ModeDeep:
		return Mode(s), true
	}
	return Mode(s), false
}

func (m Mode) Valid() bool {
	return m == ModeFast || m == ModeDeep
}

// Finding is the outcome of a single checker run.
type Finding struct {
	OK      bool
	Message string
	Tags    []Tag
	Error   string
}

// Pass builds a successful finding. The ok tag always comes first.
func Pass(message string, extra ...Tag) Finding {
	return Finding{
		OK:      true,
		Message: message,
		Tags:    dedupe(append([]Tag{TagOK}, extra...)),
	}
}

// Fail builds a failed finding tagged unknown_error when no tag is given.
func Fail(message string, tags ...Tag) Finding {
	return Finding{
		OK:      false,
		Message: message,
		Tags:    failureTags(tags),
	}
}

// FailErr is Fail with the raw error text recorded.
func FailErr(message string, err error, tags ...Tag) Finding {
	f := Fail(message, tags...)
	if err != nil {
		f.Error = err.Error()
	}
	return f
}

// Normalize repairs a finding built by hand so that an ok finding carries the
// ok tag and a failed one carries at least one failure tag.
func (f Finding) Normalize() Finding {
	if f.OK {
		if !slices.Contains(f.Tags, TagOK) {
			f.Tags = append([]Tag{TagOK}, f.Tags...)
		}
		f.Tags = dedupe(f.Tags)
		return f
	}
	f.Tags = failureTags(f.Tags)
	return f
}

// HasTag reports whether the finding carries t.
func (f Finding) HasTag(t Tag) bool {
	return slices.Contains(f.Tags, t)
}

func failureTags(tags []Tag) []Tag {
	out := make([]Tag, 0, len(tags))
	for _, t := range tags {
		if t != TagOK {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return []Tag{TagUnknownError}
	}
	return dedupe(out)
}

func dedupe(tags []Tag) []Tag {
	out := make([]Tag, 0, len(tags))
	for _, t := range tags {
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// Report is a Finding bound to the file it describes.
type Report struct {
	FilePath   string   `json:"file_path"`
	Extension  string   `json:"extension"`
	Mode       Mode     `json:"mode"`
	OK         bool     `json:"ok"`
	Message    string   `json:"message"`
	Tags       []Tag    `json:"tags"`
	Error      string   `json:"error,omitempty"`
	CacheHit   bool     `json:"cache_hit"`
	DurationMS *float64 `json:"duration_ms,omitempty"`
}

// New binds a finding to a path.
func New(path, extension string, mode Mode, f Finding) Report {
	return Report{
		FilePath:  path,
		Extension: extension,
		Mode:      mode,
		OK:        f.OK,
		Message:   f.Message,
		Tags:      slices.Clone(f.Tags),
		Error:     f.Error,
	}
}

// Finding returns the inspection outcome without the file binding.
func (r Report) Finding() Finding {
	return Finding{OK: r.OK, Message: r.Message, Tags: slices.Clone(r.Tags), Error: r.Error}
}

// Clone returns a deep copy of r.
func (r Report) Clone() Report {
	c := r
	c.Tags = slices.Clone(r.Tags)
	if r.DurationMS != nil {
		d := *r.DurationMS
		c.DurationMS = &d
	}
	return c
}

func (r Report) WithCacheHit(hit bool) Report {
	c := r.Clone()
	c.CacheHit = hit
	return c
}

func (r Report) WithDuration(ms float64) Report {
	c := r.Clone()
	c.DurationMS = &ms
	return c
}

// WithMode relabels the report; the receiver is left untouched.
func (r Report) WithMode(m Mode) Report {
	c := r.Clone()
	c.Mode = m
	return c
}

func (r Report) HasTag(t Tag) bool {
	return slices.Contains(r.Tags, t)
}

// Cacheable is false for outcomes that describe the request rather than the
// file contents.
func (r Report) Cacheable() bool {
	return !r.HasTag(TagNotFound) && !r.HasTag(TagInvalidMode)
}
