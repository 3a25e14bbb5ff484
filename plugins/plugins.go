// Package plugins wires the checker groups into a registry.
//
// Every default group is compiled in unless a build tag removes it:
//
//	errorfile_noimage errorfile_nopdf errorfile_nooffice
//	errorfile_noarchive errorfile_nomedia errorfile_notext
//
// A removed group keeps its name but has no Register function, and Load
// records it as skipped.
package plugins

import (
	"github.com/Hellohistory/ErrorFile/logger"
	"github.com/Hellohistory/ErrorFile/registry"
)

// Group is a named set of checkers registered together.
type Group struct {
	Name     string
	Register func(*registry.Registry)
}

// Available reports whether the group was compiled into this binary.
func (g Group) Available() bool { return g.Register != nil }

// LoadResult lists group names in load order.
type LoadResult struct {
	Loaded  []string `json:"loaded"`
	Skipped []string `json:"skipped"`
}

// Load registers every available group into reg. Later groups override
// earlier ones for the same extension.
func Load(reg *registry.Registry, groups []Group) LoadResult {
	var res LoadResult
	for _, g := range groups {
		if !g.Available() {
			logger.Debugf("checker group %s not compiled in", g.Name)
			res.Skipped = append(res.Skipped, g.Name)
			continue
		}
		g.Register(reg)
		res.Loaded = append(res.Loaded, g.Name)
	}
	return res
}

// Default returns the built-in groups in registration order.
func Default() []Group {
	return []Group{imageGroup, pdfGroup, officeGroup, archiveGroup, mediaGroup, textGroup}
}

// Names returns the names of groups.
func Names(groups []Group) []string {
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.Name
	}
	return out
}
