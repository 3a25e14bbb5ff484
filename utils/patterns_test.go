package utils

import "testing"

func TestInclude(t *testing.T) {
	f := NewPathFilter(nil, nil, false)
	if !f.Include("file.txt") {
		t.Fatal("expected include by default")
	}
	f = NewPathFilter([]string{"*.pdf"}, nil, false)
	if f.Include("notes.txt") {
		t.Fatal("should not include unmatched include pattern")
	}
	if !f.Include("/data/report.pdf") {
		t.Fatal("should include matching include pattern")
	}
	f = NewPathFilter(nil, []string{"draft-*"}, false)
	if f.Include("draft-1.docx") {
		t.Fatal("should exclude matching exclude pattern")
	}
	if !f.Include("final.docx") {
		t.Fatal("should include when exclude does not match")
	}
	f = NewPathFilter([]string{`/incoming/.*\.zip$`}, nil, false)
	if !f.Include("/srv/incoming/batch.zip") {
		t.Fatal("should match regex include pattern")
	}
	if f.Include("/srv/archive/batch.zip") {
		t.Fatal("regex include should be anchored to its directory")
	}
}

func TestHiddenAndDescend(t *testing.T) {
	f := NewPathFilter([]string{"*.txt"}, []string{"node_modules"}, true)
	if f.Include("/a/.secret.txt") {
		t.Fatal("hidden file included")
	}
	if f.Descend("/a/.git") {
		t.Fatal("hidden directory entered")
	}
	if f.Descend("/a/node_modules") {
		t.Fatal("excluded directory entered")
	}
	if !f.Descend("/a/docs") {
		t.Fatal("include patterns must not stop descent")
	}
	var nilFilter *PathFilter
	if !nilFilter.Include("x") || !nilFilter.Descend("y") {
		t.Fatal("nil filter should accept everything")
	}
	if !NewPathFilter(nil, nil, false).Include("/a/.profile") {
		t.Fatal("hidden files are kept unless skipHidden is set")
	}
}
