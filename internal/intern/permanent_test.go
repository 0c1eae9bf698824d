package intern

import (
	"sync"
	"testing"
)

func TestPermanentSetInsertAndLookup(t *testing.T) {
	set := NewPermanentSet()
	if _, ok := set.Lookup("div", 3); ok {
		t.Fatalf("lookup on empty set should miss")
	}
	first := set.Insert("div", 3)
	if again := set.Insert("div", 3); again != first {
		t.Fatalf("expected same entry for repeated insert")
	}
	if found, ok := set.Lookup("div", 3); !ok || found != first {
		t.Fatalf("lookup did not return the inserted entry")
	}
	if first.Refs() != 0 {
		t.Fatalf("permanent entries are not reference counted, got %d", first.Refs())
	}
}

func TestPermanentSetHashCollisions(t *testing.T) {
	set := NewPermanentSet()
	a := set.Insert("href", 42)
	b := set.Insert("src", 42)
	if a == b {
		t.Fatalf("colliding content must map to distinct entries")
	}
	if e, ok := set.Lookup("src", 42); !ok || e != b {
		t.Fatalf("lookup returned the wrong colliding entry")
	}
	if _, ok := set.Lookup("alt", 42); ok {
		t.Fatalf("lookup matched content that was never inserted")
	}
	if set.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", set.Len())
	}
}

func TestPermanentSetWalk(t *testing.T) {
	set := NewPermanentSet()
	for i, name := range []string{"rect", "circle", "path"} {
		set.Insert(name, uint32(i))
	}
	seen := make(map[string]bool)
	set.Walk(func(info EntryInfo) bool {
		seen[info.Content] = true
		return true
	})
	if len(seen) != 3 || !seen["circle"] {
		t.Fatalf("walk missed entries: %v", seen)
	}
}

func TestPermanentSetConcurrentInsert(t *testing.T) {
	set := NewPermanentSet()
	const workers = 16
	got := make([]*Entry, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				set.Insert("other", 5)
			}
			got[w] = set.Insert("svg", 1234)
		}(w)
	}
	wg.Wait()
	for _, e := range got {
		if e != got[0] {
			t.Fatalf("concurrent inserts produced different entries")
		}
	}
	if set.Len() != 2 {
		t.Fatalf("expected 2 distinct strings, got %d", set.Len())
	}
}
