//go:build !bridge_nocheck

package env

// affinityChecks gates the per-operation goroutine identity assertion.
// Build with -tags bridge_nocheck to compile it out of hot paths.
const affinityChecks = true
