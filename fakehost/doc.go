// Package fakehost is a complete in-process host for exercising addon
// code without a real language runtime behind it.
//
// A Host owns one environment and one loop goroutine, which plays the
// part of the environment thread: every dispatched callback, delivered
// queue payload, work completion, and lifecycle hook runs there. Value
// operations called from any other goroutine panic immediately rather
// than corrupting state, so misuse shows up at the call site.
//
// Values live in a slot table and die when their owning handle scope
// closes; objects keep their property values alive independently of
// scopes, and references pin values across calls. GC reclaims whatever
// is unreachable and runs finalizers on the loop, which makes
// finalization deterministic and assertable in tests.
//
// While an exception is pending, value, object, and function operations
// fail with a pending-exception status. Scope operations, reference
// operations, error construction, and the exception accessors stay
// usable so error handling and unwinding can proceed.
//
// WithEnv, LoadAddon, and CallExport are the test-facing conveniences:
// they move the caller onto the loop, wrap the environment, and speak
// plain Go values at the edges.
package fakehost
