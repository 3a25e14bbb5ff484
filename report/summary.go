package report

import "sort"

// Summary aggregates a set of reports.
type Summary struct {
	Total     int         `json:"total"`
	Passed    int         `json:"passed"`
	Failed    int         `json:"failed"`
	CacheHits int         `json:"cache_hits"`
	Tags      map[Tag]int `json:"tags"`
}

func Summarize(reports []Report) Summary {
	s := Summary{Tags: make(map[Tag]int)}
	for _, r := range reports {
		s.Add(r)
	}
	return s
}

func (s *Summary) Add(r Report) {
	if s.Tags == nil {
		s.Tags = make(map[Tag]int)
	}
	s.Total++
	if r.OK {
		s.Passed++
	} else {
		s.Failed++
	}
	if r.CacheHit {
		s.CacheHits++
	}
	for _, t := range r.Tags {
		s.Tags[t]++
	}
}

// SortedTags lists the tags seen, most frequent first.
func (s Summary) SortedTags() []Tag {
	tags := make([]Tag, 0, len(s.Tags))
	for t := range s.Tags {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool {
		if s.Tags[tags[i]] != s.Tags[tags[j]] {
			return s.Tags[tags[i]] > s.Tags[tags[j]]
		}
		return tags[i] < tags[j]
	})
	return tags
}
