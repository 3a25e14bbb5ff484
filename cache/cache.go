// Package cache keeps recent inspection reports keyed by file identity and
// inspection settings.
package cache

import (
	"container/list"
	"os"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/djherbis/times"

	"github.com/Hellohistory/ErrorFile/prefilter"
	"github.com/Hellohistory/ErrorFile/report"
)

// DefaultMaxEntries bounds a cache created with a non-positive size.
const DefaultMaxEntries = 1024

// Key identifies a cached report. Freshness is size, modification time and,
// where the platform records it, inode change time. A rewrite that keeps
// all of them is not detected.
type Key struct {
	Path       string
	Size       int64
	ModTime    int64
	ChangeTime int64
	Mode       report.Mode
	Precheck   bool
	Policy     uint64
}

// NewKey builds the key for path as described by info.
func NewKey(path string, info os.FileInfo, mode report.Mode, policy prefilter.Policy) Key {
	k := Key{
		Path:     path,
		Size:     info.Size(),
		ModTime:  info.ModTime().UnixNano(),
		Mode:     mode,
		Precheck: policy.Enabled,
		Policy:   PolicyFingerprint(policy),
	}
	if ts := times.Get(info); ts.HasChangeTime() {
		k.ChangeTime = ts.ChangeTime().UnixNano()
	}
	return k
}

// PolicyFingerprint hashes the canonical allow and deny lists so that
// reordered or duplicated entries share cache lines.
func PolicyFingerprint(p prefilter.Policy) uint64 {
	n := p.Normalized()
	var b strings.Builder
	b.WriteString("allow:")
	b.WriteString(strings.Join(n.Allowlist, ","))
	b.WriteString("|deny:")
	b.WriteString(strings.Join(n.Denylist, ","))
	return xxhash.Sum64String(b.String())
}

type entry struct {
	key    Key
	report report.Report
}

// Cache is a fixed-size LRU guarded by a single mutex.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	ll         *list.List
	items      map[Key]*list.Element
	onEvict    func(Key)
}

func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		maxEntries: maxEntries,
		ll:         list.New(),
		items:      make(map[Key]*list.Element),
	}
}

// OnEvict registers a callback run, under the lock, for every eviction.
func (c *Cache) OnEvict(fn func(Key)) {
	c.mu.Lock()
	c.onEvict = fn
	c.mu.Unlock()
}

// Get returns the cached report for k and marks it most recently used.
func (c *Cache) Get(k Key) (report.Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[k]
	if !ok {
		return report.Report{}, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*entry).report, true
}

// Set stores r under k. Reports that describe the request rather than the
// file are ignored.
func (c *Cache) Set(k Key, r report.Report) {
	if !r.Cacheable() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[k]; ok {
		el.Value.(*entry).report = r
		c.ll.MoveToFront(el)
		return
	}
	c.items[k] = c.ll.PushFront(&entry{key: k, report: r})
	for c.ll.Len() > c.maxEntries {
		c.removeOldest()
	}
}

func (c *Cache) removeOldest() {
	el := c.ll.Back()
	if el == nil {
		return
	}
	c.ll.Remove(el)
	e := el.Value.(*entry)
	delete(c.items, e.key)
	if c.onEvict != nil {
		c.onEvict(e.key)
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *Cache) MaxEntries() int {
	return c.maxEntries
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[Key]*list.Element)
}
