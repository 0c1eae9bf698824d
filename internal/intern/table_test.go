package intern

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

const divHash = 0x2a5f91c3

func TestNewTableRoundsToPowerOfTwo(t *testing.T) {
	cases := []struct {
		requested int
		want      int
	}{
		{0, DefaultBuckets},
		{-4, DefaultBuckets},
		{1, 1},
		{3, 4},
		{4096, 4096},
		{5000, 8192},
	}
	for _, tc := range cases {
		table := NewTable(tc.requested)
		if got := table.Stats().Buckets; got != tc.want {
			t.Fatalf("NewTable(%d): expected %d buckets, got %d", tc.requested, tc.want, got)
		}
	}
}

func TestInsertConvergesOnSameEntry(t *testing.T) {
	table := NewTable(64)
	first := table.Insert("div", divHash)
	second := table.Insert("div", divHash)
	if first != second {
		t.Fatalf("expected identical entries for equal content")
	}
	if first.Refs() != 2 {
		t.Fatalf("expected refcount 2, got %d", first.Refs())
	}
	if first.String() != "div" || first.Hash() != divHash {
		t.Fatalf("unexpected entry contents %q/%x", first.String(), first.Hash())
	}
	if table.Len() != 1 {
		t.Fatalf("expected a single resident entry, got %d", table.Len())
	}
}

func TestInsertDistinguishesHashCollisions(t *testing.T) {
	table := NewTable(64)
	a := table.Insert("span", 7)
	b := table.Insert("table", 7)
	if a == b {
		t.Fatalf("colliding content must not share an entry")
	}
	if a.String() != "span" || b.String() != "table" {
		t.Fatalf("entries returned wrong content: %q %q", a.String(), b.String())
	}
	if again := table.Insert("table", 7); again != b {
		t.Fatalf("expected second insert of colliding content to reuse its entry")
	}
	if table.Len() != 2 {
		t.Fatalf("expected two entries, got %d", table.Len())
	}
}

func TestInsertCopiesContent(t *testing.T) {
	table := NewTable(16)
	buf := []byte("section-heading")
	e := table.Insert(string(buf[:7]), 99)
	buf[0] = 'X'
	if e.String() != "section" {
		t.Fatalf("entry content changed with caller buffer: %q", e.String())
	}
}

func TestEntryLifecycle(t *testing.T) {
	table := NewTable(64)

	h1 := table.Insert("div", divHash)
	if h1.Refs() != 1 {
		t.Fatalf("expected refcount 1, got %d", h1.Refs())
	}
	if table.Insert("div", divHash) != h1 || h1.Refs() != 2 {
		t.Fatalf("expected second insert to return h1 with refcount 2")
	}

	if h1.Release() {
		t.Fatalf("release to 1 must not report the last reference")
	}
	if table.Len() != 1 {
		t.Fatalf("entry should stay resident while referenced")
	}
	if !h1.Release() {
		t.Fatalf("release to 0 must report the last reference")
	}
	if !table.Remove(h1) {
		t.Fatalf("expected remove to find h1")
	}
	if table.Len() != 0 {
		t.Fatalf("expected empty table, got %d entries", table.Len())
	}

	h2 := table.Insert("div", divHash)
	if h2 == h1 {
		t.Fatalf("expected a new entry after erasure")
	}
	if h2.Refs() != 1 {
		t.Fatalf("expected fresh refcount 1, got %d", h2.Refs())
	}
}

func TestBalancedLoadLeavesNoEntries(t *testing.T) {
	table := NewTable(8)
	const n = 100
	handles := make([]*Entry, 0, n)
	for i := 0; i < n; i++ {
		handles = append(handles, table.Insert("li", 11))
	}
	for _, h := range handles {
		if h.Release() {
			table.Remove(h)
		}
	}
	if table.Len() != 0 {
		t.Fatalf("expected no resident entries, got %d", table.Len())
	}
	stats := table.Stats()
	if stats.Removes != 1 || stats.Misses != 1 || stats.Hits != n-1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Bytes != 0 {
		t.Fatalf("expected byte accounting to return to zero, got %d", stats.Bytes)
	}
}

func TestInsertSkipsEntryAwaitingRemoval(t *testing.T) {
	table := NewTable(64)

	doomed := table.Insert("div", divHash)
	if !doomed.Release() {
		t.Fatalf("expected last release")
	}
	// The releasing caller has not called Remove yet.
	fresh := table.Insert("div", divHash)
	if fresh == doomed {
		t.Fatalf("insert reused an entry whose count had reached zero")
	}
	if doomed.Refs() != 0 {
		t.Fatalf("doomed entry refcount should be restored to 0, got %d", doomed.Refs())
	}
	if fresh.Refs() != 1 {
		t.Fatalf("expected fresh refcount 1, got %d", fresh.Refs())
	}
	if table.Len() != 2 {
		t.Fatalf("expected transient duplicate, got %d entries", table.Len())
	}
	if table.Stats().Resurrections != 1 {
		t.Fatalf("expected one resurrection, got %d", table.Stats().Resurrections)
	}

	if !table.Remove(doomed) {
		t.Fatalf("expected doomed entry to be removed by identity")
	}
	if table.Len() != 1 {
		t.Fatalf("remove must leave the newer duplicate in place")
	}
	if again := table.Insert("div", divHash); again != fresh || fresh.Refs() != 2 {
		t.Fatalf("expected later inserts to converge on the surviving entry")
	}
}

func TestInsertPrefersLiveDuplicateOverDoomedEntry(t *testing.T) {
	table := NewTable(64)

	doomed := table.Insert("div", divHash)
	doomed.Release()
	live := table.Insert("div", divHash)
	if live == doomed {
		t.Fatalf("expected a fresh entry beside the doomed one")
	}

	// doomed still precedes live in the bucket.
	if again := table.Insert("div", divHash); again != live {
		t.Fatalf("insert created a second live duplicate")
	}
	if table.Len() != 2 || live.Refs() != 2 {
		t.Fatalf("unexpected state: len=%d refs=%d", table.Len(), live.Refs())
	}
	if got := table.Stats().Resurrections; got != 2 {
		t.Fatalf("expected both inserts to skip the doomed entry, got %d", got)
	}
}

func TestRemoveMissingIsNoop(t *testing.T) {
	table := NewTable(16)
	e := table.Insert("p", 5)
	e.Release()
	if !table.Remove(e) {
		t.Fatalf("first remove should succeed")
	}
	if table.Remove(e) {
		t.Fatalf("second remove should be a no-op")
	}
	if table.Remove(nil) {
		t.Fatalf("nil remove should be a no-op")
	}
	if got := table.Stats().MissedRemoves; got != 1 {
		t.Fatalf("expected one missed remove, got %d", got)
	}
}

func TestConcurrentInsertConverges(t *testing.T) {
	table := NewTable(DefaultBuckets)
	const workers = 16
	const perWorker = 500

	results := make([][]*Entry, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			local := make([]*Entry, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, table.Insert("body", divHash))
			}
			results[w] = local
		}(w)
	}
	wg.Wait()

	want := results[0][0]
	for _, local := range results {
		for _, e := range local {
			if e != want {
				t.Fatalf("concurrent inserts returned different entries")
			}
		}
	}
	if got := want.Refs(); got != workers*perWorker {
		t.Fatalf("expected refcount %d, got %d", workers*perWorker, got)
	}
}

func TestConcurrentInsertReleaseRemove(t *testing.T) {
	table := NewTable(4)
	words := []string{"a", "abbr", "address", "area", "article"}
	const workers = 8
	const iterations = 5000

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				word := words[(i+w)%len(words)]
				// A shared hash forces every word into one bucket.
				e := table.Insert(word, 1)
				if e.String() != word {
					errs <- fmt.Errorf("insert(%q) returned %q", word, e.String())
					return
				}
				if e.Refs() < 1 {
					errs <- fmt.Errorf("insert(%q) returned an entry with refcount %d", word, e.Refs())
					return
				}
				if e.Release() && !table.Remove(e) {
					errs <- fmt.Errorf("entry %q was already removed by someone else", word)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	stats := table.Stats()
	if stats.Entries != 0 {
		t.Fatalf("expected no resident entries, got %d", stats.Entries)
	}
	if stats.MissedRemoves != 0 {
		t.Fatalf("expected no missed removes, got %d", stats.MissedRemoves)
	}
	if stats.Removes != stats.Misses {
		t.Fatalf("every created entry should be removed once: created=%d removed=%d", stats.Misses, stats.Removes)
	}
}

func TestBucketIndependence(t *testing.T) {
	table := NewTable(16)
	held := &table.buckets[table.BucketIndex(0)]
	held.mu.Lock()
	defer held.mu.Unlock()

	done := make(chan *Entry, 1)
	go func() {
		done <- table.Insert("img", 1)
	}()

	select {
	case e := <-done:
		if table.BucketIndex(e.Hash()) == table.BucketIndex(0) {
			t.Fatalf("test hashes unexpectedly share a bucket")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("insert into an unlocked bucket blocked on another bucket's lock")
	}
}

func TestWalkAndStats(t *testing.T) {
	table := NewTable(8)
	table.Insert("head", 1)
	table.Insert("html", 9)
	table.Insert("html", 9)
	table.Insert("meta", 2)

	seen := make(map[string]EntryInfo)
	table.Walk(func(info EntryInfo) bool {
		seen[info.Content] = info
		return true
	})
	if len(seen) != 3 {
		t.Fatalf("expected 3 entries, got %v", seen)
	}
	if seen["html"].Refs != 2 || seen["html"].Bucket != 1 {
		t.Fatalf("unexpected html entry: %+v", seen["html"])
	}

	visited := 0
	table.Walk(func(EntryInfo) bool {
		visited++
		return false
	})
	if visited != 1 {
		t.Fatalf("walk should stop when fn returns false, visited %d", visited)
	}

	stats := table.Stats()
	if stats.MaxBucketLen != 2 {
		t.Fatalf("expected head and html to share bucket 1, max len %d", stats.MaxBucketLen)
	}
	if stats.Bytes != int64(len("head")+len("html")+len("meta")) {
		t.Fatalf("unexpected byte count %d", stats.Bytes)
	}
	if stats.HitRate() != 0.25 {
		t.Fatalf("expected hit rate 0.25, got %v", stats.HitRate())
	}
}

func TestDynamicIsSingleton(t *testing.T) {
	if Dynamic() != Dynamic() {
		t.Fatalf("expected the same process-wide table")
	}
	if Dynamic().Stats().Buckets != DefaultBuckets {
		t.Fatalf("expected %d buckets", DefaultBuckets)
	}
}
