//go:build !interndebug

package intern

const debugChecks = false
