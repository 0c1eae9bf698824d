package intern

import (
	"strings"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// PermanentSet interns strings forever. Lookups are keyed directly by the
// caller's hash, which also picks the shard, so there is no second hashing
// pass. Entries are never removed and carry no reference count; use it only
// for vocabularies that are small and bounded.
type PermanentSet struct {
	m cmap.ConcurrentMap[uint32, []*Entry]
}

func NewPermanentSet() *PermanentSet {
	return &PermanentSet{
		m: cmap.NewWithCustomShardingFunction[uint32, []*Entry](func(hash uint32) uint32 {
			return hash
		}),
	}
}

// Insert returns the entry for content, creating it on first use. Strings
// that collide on hash share a slot and are told apart by content.
func (s *PermanentSet) Insert(content string, hash uint32) *Entry {
	if e, ok := s.Lookup(content, hash); ok {
		return e
	}
	var found *Entry
	s.m.Upsert(hash, nil, func(exist bool, slot []*Entry, _ []*Entry) []*Entry {
		if exist {
			for _, e := range slot {
				if e.content == content {
					found = e
					return slot
				}
			}
		}
		found = newEntry(strings.Clone(content), hash, 0)
		// Readers iterate slots outside the shard lock, so never append in place.
		next := make([]*Entry, len(slot), len(slot)+1)
		copy(next, slot)
		return append(next, found)
	})
	return found
}

// Lookup returns the entry for content if it has been inserted.
func (s *PermanentSet) Lookup(content string, hash uint32) (*Entry, bool) {
	slot, ok := s.m.Get(hash)
	if !ok {
		return nil, false
	}
	for _, e := range slot {
		if e.content == content {
			return e, true
		}
	}
	return nil, false
}

// Len returns the number of interned strings.
func (s *PermanentSet) Len() int {
	n := 0
	s.m.IterCb(func(_ uint32, slot []*Entry) {
		n += len(slot)
	})
	return n
}

// Walk calls fn for every interned string in unspecified order.
func (s *PermanentSet) Walk(fn func(EntryInfo) bool) {
	for item := range s.m.IterBuffered() {
		for _, e := range item.Val {
			if !fn(EntryInfo{Bucket: -1, Content: e.content, Hash: e.hash}) {
				return
			}
		}
	}
}
