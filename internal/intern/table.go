package intern

import (
	"fmt"
	"math/bits"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

const (
	// DefaultBuckets is the bucket count used by Dynamic and by NewTable
	// when given a non-positive size.
	DefaultBuckets = 4096
	maxBuckets     = 1 << 24
)

type bucket struct {
	mu      sync.Mutex
	entries []*Entry
	_       cpu.CacheLinePad
}

// Table is a sharded interning table with reference-counted entries.
//
// The bucket for a string is its caller-supplied hash masked to the table
// size; no further hashing happens, so callers must supply well-distributed
// hashes. Each bucket has its own lock and operations on different buckets
// never contend.
type Table struct {
	buckets []bucket
	mask    uint32

	entries atomic.Int64
	bytes   atomic.Int64

	inserts       atomic.Uint64
	hits          atomic.Uint64
	misses        atomic.Uint64
	resurrections atomic.Uint64
	removes       atomic.Uint64
	missedRemoves atomic.Uint64
}

// NewTable returns an empty table with the bucket count rounded up to a
// power of two.
func NewTable(buckets int) *Table {
	if buckets <= 0 {
		buckets = DefaultBuckets
	}
	if buckets > maxBuckets {
		buckets = maxBuckets
	}
	size := 1 << bits.Len(uint(buckets-1))
	return &Table{
		buckets: make([]bucket, size),
		mask:    uint32(size - 1),
	}
}

func (t *Table) bucketFor(hash uint32) *bucket {
	return &t.buckets[hash&t.mask]
}

// BucketIndex reports which bucket an entry with the given hash lives in.
func (t *Table) BucketIndex(hash uint32) int {
	return int(hash & t.mask)
}

// Insert returns the entry holding content, creating it if necessary, with
// its reference count raised by one on behalf of the caller. Concurrent
// inserts of equal content converge on the same entry, except that an entry
// whose count has already dropped to zero is never reused: its last holder
// is about to remove it, so a fresh entry is created beside it instead.
// At most one entry per content has a non-zero count at any time.
func (t *Table) Insert(content string, hash uint32) *Entry {
	t.inserts.Add(1)
	b := t.bucketFor(hash)

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range b.entries {
		if e.hash != hash || e.content != content {
			continue
		}
		if e.refs.Add(1) > 1 {
			t.hits.Add(1)
			return e
		}
		// The count was zero: a concurrent Release has committed to
		// removing e and may do so as soon as we unlock. A live duplicate
		// may sit further along the bucket.
		e.refs.Add(-1)
		t.resurrections.Add(1)
	}

	e := newEntry(strings.Clone(content), hash, 1)
	b.entries = append(b.entries, e)
	t.misses.Add(1)
	t.entries.Add(1)
	t.bytes.Add(int64(len(e.content)))
	return e
}

// Remove erases e from its bucket. The caller must be the one whose
// Release observed the count reach zero, and must call Remove once.
// Entries are matched by identity, so a newer duplicate with the same
// content is left in place. Removing an entry that is not resident is a
// no-op and reports false.
func (t *Table) Remove(e *Entry) bool {
	if e == nil {
		return false
	}
	b := t.bucketFor(e.hash)

	b.mu.Lock()
	defer b.mu.Unlock()

	if debugChecks {
		if refs := e.refs.Load(); refs != 0 {
			panic(fmt.Sprintf("intern: removing %q with %d live references", e.content, refs))
		}
	}

	i := slices.Index(b.entries, e)
	if i < 0 {
		t.missedRemoves.Add(1)
		return false
	}
	b.entries = slices.Delete(b.entries, i, i+1)
	t.removes.Add(1)
	t.entries.Add(-1)
	t.bytes.Add(-int64(len(e.content)))
	return true
}

// Len returns the number of resident entries, including transient
// duplicates and entries awaiting removal.
func (t *Table) Len() int {
	return int(t.entries.Load())
}

// Stats describes a table's occupancy and operation counters.
type Stats struct {
	Buckets       int
	Entries       int
	Bytes         int64
	MaxBucketLen  int
	Inserts       uint64
	Hits          uint64
	Misses        uint64
	Resurrections uint64
	Removes       uint64
	MissedRemoves uint64
}

// HitRate returns the share of inserts that reused an existing entry.
func (s Stats) HitRate() float64 {
	if s.Inserts == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Inserts)
}

// Stats collects counters and scans every bucket for the longest list.
// Buckets are locked one at a time, so the result is not a consistent
// snapshot under concurrent use.
func (t *Table) Stats() Stats {
	maxLen := 0
	for i := range t.buckets {
		b := &t.buckets[i]
		b.mu.Lock()
		if n := len(b.entries); n > maxLen {
			maxLen = n
		}
		b.mu.Unlock()
	}
	return Stats{
		Buckets:       len(t.buckets),
		Entries:       int(t.entries.Load()),
		Bytes:         t.bytes.Load(),
		MaxBucketLen:  maxLen,
		Inserts:       t.inserts.Load(),
		Hits:          t.hits.Load(),
		Misses:        t.misses.Load(),
		Resurrections: t.resurrections.Load(),
		Removes:       t.removes.Load(),
		MissedRemoves: t.missedRemoves.Load(),
	}
}

// EntryInfo is a copy of an entry's state taken while walking a table.
type EntryInfo struct {
	Bucket  int
	Content string
	Hash    uint32
	Refs    int32
}

// Walk calls fn for every resident entry until fn returns false. Each
// bucket is copied under its lock and fn runs with no lock held, so fn may
// call back into the table.
func (t *Table) Walk(fn func(EntryInfo) bool) {
	var infos []EntryInfo
	for i := range t.buckets {
		b := &t.buckets[i]
		infos = infos[:0]
		b.mu.Lock()
		for _, e := range b.entries {
			infos = append(infos, EntryInfo{Bucket: i, Content: e.content, Hash: e.hash, Refs: e.refs.Load()})
		}
		b.mu.Unlock()
		for _, info := range infos {
			if !fn(info) {
				return
			}
		}
	}
}
