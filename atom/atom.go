// Package atom provides cheap, identity-comparable handles for interned
// strings such as markup tag and attribute names.
//
// Names from the built-in markup vocabulary are static: they live for the
// whole process and are not reference counted. Every other string is
// dynamic and reference counted in a sharded table; Go has no destructors,
// so holders must pair each New or Clone with exactly one Release.
package atom

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/yourusername/atomcache/internal/intern"
	"github.com/yourusername/atomcache/vocab"
)

// Hash returns the 32-bit hash used to place s in a table.
func Hash(s string) uint32 {
	h := xxhash.Sum64String(s)
	return uint32(h) ^ uint32(h>>32)
}

// Namespace pairs a static vocabulary with a dynamic table. Atoms from
// different namespaces never compare equal.
type Namespace struct {
	dynamic *intern.Table
	static  *intern.PermanentSet
}

// NewNamespace builds a namespace on the given backends. A nil static set
// makes every atom dynamic.
func NewNamespace(dynamic *intern.Table, static *intern.PermanentSet) *Namespace {
	if dynamic == nil {
		dynamic = intern.NewTable(intern.DefaultBuckets)
	}
	return &Namespace{dynamic: dynamic, static: static}
}

// NewStaticSet returns a permanent set preloaded with words.
func NewStaticSet(words []string) *intern.PermanentSet {
	set := intern.NewPermanentSet()
	for _, word := range words {
		set.Insert(word, Hash(word))
	}
	return set
}

var defaultNamespace = sync.OnceValue(func() *Namespace {
	return NewNamespace(intern.Dynamic(), NewStaticSet(vocab.Markup()))
})

// Default returns the process-wide namespace backed by intern.Dynamic and
// the built-in markup vocabulary.
func Default() *Namespace {
	return defaultNamespace()
}

// Table returns the namespace's dynamic table.
func (ns *Namespace) Table() *intern.Table {
	return ns.dynamic
}

// Static returns the namespace's static set, or nil if it has none.
func (ns *Namespace) Static() *intern.PermanentSet {
	return ns.static
}

// New returns the atom for s.
func (ns *Namespace) New(s string) Atom {
	hash := Hash(s)
	if ns.static != nil {
		if e, ok := ns.static.Lookup(s, hash); ok {
			return Atom{entry: e}
		}
	}
	return Atom{entry: ns.dynamic.Insert(s, hash), ns: ns}
}

// New returns the atom for s in the default namespace.
func New(s string) Atom {
	return Default().New(s)
}

// Atom is a handle to an interned string. Equal atoms from the same
// namespace share one entry, so Eq and == compare a pointer. The zero Atom
// is not the empty string; it refers to nothing.
type Atom struct {
	entry *intern.Entry
	ns    *Namespace // nil for static atoms
}

// String returns the atom's content.
func (a Atom) String() string {
	if a.entry == nil {
		return ""
	}
	return a.entry.String()
}

func (a Atom) Hash() uint32 {
	if a.entry == nil {
		return 0
	}
	return a.entry.Hash()
}

func (a Atom) IsZero() bool {
	return a.entry == nil
}

// IsStatic reports whether a comes from the static vocabulary.
func (a Atom) IsStatic() bool {
	return a.entry != nil && a.ns == nil
}

// Eq reports whether a and b are the same interned string.
func (a Atom) Eq(b Atom) bool {
	return a.entry == b.entry
}

// Clone returns a second handle to the same string. Each clone must be
// released separately.
func (a Atom) Clone() Atom {
	if a.entry != nil && a.ns != nil {
		a.entry.Retain()
	}
	return a
}

// Release drops the handle. Releasing the last handle to a dynamic string
// removes it from its table. Static and zero atoms ignore Release.
func (a Atom) Release() {
	if a.entry == nil || a.ns == nil {
		return
	}
	if a.entry.Release() {
		a.ns.dynamic.Remove(a.entry)
	}
}
