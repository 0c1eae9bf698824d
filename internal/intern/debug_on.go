//go:build interndebug

package intern

// Built with -tags interndebug, Remove verifies that the entry has no live
// references and panics otherwise.
const debugChecks = true
