// Package intern implements the shared string tables behind atoms.
//
// Table is the primary backend: a sharded, reference-counted table whose
// entries are removed once their last reference is released. PermanentSet
// is the alternative for small fixed vocabularies: entries are keyed by
// hash and live for the rest of the process. The two are not
// interchangeable, since only Table ever shrinks.
package intern

import "sync"

var dynamic = sync.OnceValue(func() *Table {
	return NewTable(DefaultBuckets)
})

// Dynamic returns the process-wide table, creating it on first use. It is
// never torn down; entries still referenced at exit are abandoned.
func Dynamic() *Table {
	return dynamic()
}
