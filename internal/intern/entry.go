package intern

import "sync/atomic"

// Entry is a single interned string. Content and hash never change after
// construction and may be read without synchronisation by any holder; the
// reference count is the only mutable field.
type Entry struct {
	content string
	hash    uint32
	refs    atomic.Int32
}

func newEntry(content string, hash uint32, refs int32) *Entry {
	e := &Entry{content: content, hash: hash}
	e.refs.Store(refs)
	return e
}

// String returns the interned content.
func (e *Entry) String() string {
	return e.content
}

// Hash returns the caller-supplied hash the entry was inserted with.
func (e *Entry) Hash() uint32 {
	return e.hash
}

// Refs reports the current reference count. The value is a snapshot and
// may be stale by the time the caller inspects it.
func (e *Entry) Refs() int32 {
	return e.refs.Load()
}

// Retain adds a reference on behalf of a caller that already holds a live
// one. It must not be used to revive an entry whose count reached zero;
// only Table.Insert may observe such entries.
func (e *Entry) Retain() {
	e.refs.Add(1)
}

// Release drops one reference and reports whether it was the last. The
// caller that sees true owns the entry's removal and must pass it to
// Table.Remove exactly once.
func (e *Entry) Release() bool {
	return e.refs.Add(-1) == 0
}
