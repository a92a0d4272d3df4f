// Package env provides the safe wrapper around one host environment call.
//
// An *Env exists only for the duration of a single inbound host call. Enter
// adopts the raw handle the host supplied, runs the caller's function, and
// invalidates the wrapper when it returns; a stored *Env fails fast on any
// later use. Environments are bound to the goroutine that entered them;
// touching one from another goroutine panics (checks can be compiled out
// with the bridge_nocheck build tag).
//
// # Handle scopes
//
// Every Value belongs to exactly one handle scope and dies with it. Enter
// opens a root scope around the whole call; InScope and InEscapableScope
// nest further scopes. Scopes close strictly LIFO and closing is owned by
// the wrapper alone, so an out-of-order close cannot be expressed through
// this API. The only way to move a value out of a scope is Escape on an
// escapable scope, which works exactly once per scope.
//
//	err := env.Enter(host, raw, func(e *env.Env) error {
//		return e.InScope(func(s *env.Scope) error {
//			v, err := e.Undefined(s)
//			if err != nil {
//				return err
//			}
//			_ = v // valid until s closes
//			return nil
//		})
//	})
//
// # Exceptions
//
// ExceptionPending only observes host exception state. ClearPending is the
// explicit, separate operation that consumes it. Code that sees a
// PendingException status and cannot handle it must propagate the error
// unmodified so the exception reaches the host intact.
package env
