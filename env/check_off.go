//go:build bridge_nocheck

package env

const affinityChecks = false
