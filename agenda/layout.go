package agenda

import (
	"encoding/binary"
	"github.com/lefinal/confcomp-server/errors"
	"hash/fnv"
	"sync"
)

// maxCachedLayouts limits the number of memoized layouts. We usually have one
// list per conference day, so this is plenty.
const maxCachedLayouts = 64

// Layout is the computed conflict information and grouping for an item list.
type Layout struct {
	Conflicts []TimeConflict
	Groups    []EventGroup
}

// cachedLayout is a memoized Layout along with the items it was computed for.
type cachedLayout struct {
	items  []ScheduledItem
	layout Layout
}

// Layouter computes layouts and memoizes them by the hash of the item list so
// that unchanged lists are not recomputed on every request.
type Layouter struct {
	mode GroupingMode
	// hash is used for cache keys. Entries sharing a key are told apart by
	// comparing their items.
	hash func(items []ScheduledItem) uint64
	// cache holds computed layouts by item list hash.
	cache map[uint64][]cachedLayout
	// cachedCount is the total number of entries in cache.
	cachedCount int
	// cacheMutex locks cache and cachedCount.
	cacheMutex sync.Mutex
}

// NewLayouter creates a Layouter with the given GroupingMode. An empty mode
// defaults to GroupingSingleHop.
func NewLayouter(mode GroupingMode) *Layouter {
	if mode == "" {
		mode = GroupingSingleHop
	}
	return &Layouter{
		mode:  mode,
		hash:  hashItems,
		cache: make(map[uint64][]cachedLayout),
	}
}

// Mode returns the GroupingMode of the Layouter.
func (l *Layouter) Mode() GroupingMode {
	return l.mode
}

// Layout returns the Layout for the given items. Invalid items result in an
// errors.ErrBadRequest error. Returned layouts are shared and must not be
// modified.
func (l *Layouter) Layout(items []ScheduledItem) (Layout, error) {
	key := l.hash(items)
	if layout, ok := l.cached(key, items); ok {
		return layout, nil
	}
	var layout Layout
	if err := validateItems(items); err != nil {
		return Layout{}, errors.Wrap(err, "validate items", nil)
	}
	adj := buildAdjacency(items)
	layout.Conflicts = detectConflicts(items)
	switch l.mode {
	case GroupingTransitive:
		layout.Groups = groupTransitive(items, adj)
	default:
		layout.Groups = groupSingleHop(items, adj)
	}
	l.cacheMutex.Lock()
	if l.cachedCount >= maxCachedLayouts {
		l.cache = make(map[uint64][]cachedLayout)
		l.cachedCount = 0
	}
	l.cache[key] = append(l.cache[key], cachedLayout{
		items:  append([]ScheduledItem(nil), items...),
		layout: layout,
	})
	l.cachedCount++
	l.cacheMutex.Unlock()
	return layout, nil
}

// cached looks up the memoized Layout for exactly the given items.
func (l *Layouter) cached(key uint64, items []ScheduledItem) (Layout, bool) {
	l.cacheMutex.Lock()
	defer l.cacheMutex.Unlock()
	for _, entry := range l.cache[key] {
		if sameItems(entry.items, items) {
			return entry.layout, true
		}
	}
	return Layout{}, false
}

func sameItems(a []ScheduledItem, b []ScheduledItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CachedLayouts returns the number of currently memoized layouts.
func (l *Layouter) CachedLayouts() int {
	l.cacheMutex.Lock()
	defer l.cacheMutex.Unlock()
	return l.cachedCount
}

// hashItems hashes everything about the item list that is part of a Layout.
func hashItems(items []ScheduledItem) uint64 {
	h := fnv.New64a()
	buf := make([]byte, 8)
	writeString := func(s string) {
		binary.LittleEndian.PutUint64(buf, uint64(len(s)))
		_, _ = h.Write(buf)
		_, _ = h.Write([]byte(s))
	}
	writeNullString := func(s string, valid bool) {
		if !valid {
			_, _ = h.Write([]byte{0})
			return
		}
		_, _ = h.Write([]byte{1})
		writeString(s)
	}
	for _, item := range items {
		writeString(item.ID)
		writeString(item.Title)
		binary.LittleEndian.PutUint64(buf, uint64(item.Start))
		_, _ = h.Write(buf)
		binary.LittleEndian.PutUint64(buf, uint64(item.End))
		_, _ = h.Write(buf)
		writeNullString(item.Location.String, item.Location.Valid)
		writeNullString(item.Topic.String, item.Topic.Valid)
	}
	return h.Sum64()
}
