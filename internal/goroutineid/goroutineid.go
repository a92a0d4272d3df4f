// Package goroutineid resolves the identity of the running goroutine for
// environment-thread affinity checks.
package goroutineid

import (
	"runtime"
	"sync"
)

// 64 bytes covers the "goroutine N [state]:" header; runtime.Stack truncates
// the rest, which parse never reads.
var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 64)
		return &b
	},
}

// Current returns the running goroutine's ID, or 0 when the stack header
// cannot be parsed.
func Current() int64 {
	bp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bp)
	n := runtime.Stack(*bp, false)
	return parse((*bp)[:n])
}

// parse reads N out of a "goroutine N [state]:" header without allocating.
func parse(stack []byte) int64 {
	const prefix = "goroutine "
	if len(stack) <= len(prefix) {
		return 0
	}
	for i := 0; i < len(prefix); i++ {
		if stack[i] != prefix[i] {
			return 0
		}
	}
	var id int64
	for _, b := range stack[len(prefix):] {
		if b < '0' || b > '9' {
			break
		}
		id = id*10 + int64(b-'0')
	}
	return id
}
