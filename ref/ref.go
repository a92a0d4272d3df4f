// Package ref promotes scope-bound values into counted references that
// outlive any single host call.
//
// A *Ref is an identity: it is safe to store anywhere and share across
// goroutines, but dereferencing or touching its count requires a live
// environment, which pins those operations to the environment thread. The
// host keeps the authoritative count and may reclaim the target once it
// drops to zero; Value then reports an error rather than resurrecting it.
package ref

import (
	"sync/atomic"

	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/env"
	"github.com/wippyai/addon-bridge/status"
)

// Ref is a handle to a host-registered reference.
type Ref struct {
	host     abi.Host
	raw      abi.RefHandle
	released atomic.Bool
}

type options struct {
	initial  uint32
	finalize abi.FinalizeCallback
}

// Option configures reference creation.
type Option func(*options)

// WithInitialCount overrides the initial count of 1. Zero creates a weak
// reference: the host may reclaim the target at any time.
func WithInitialCount(n uint32) Option {
	return func(o *options) { o.initial = n }
}

// WithFinalizer registers fn to run when the host reclaims the target.
// Ownership of anything fn captures transfers to the host at registration;
// the host invokes it at most once, on the environment thread.
func WithFinalizer(fn func()) Option {
	return func(o *options) { o.finalize = fn }
}

// New promotes v into a counted reference. The default count is 1.
func New(e *env.Env, v env.Value, opts ...Option) (*Ref, error) {
	o := options{initial: 1}
	for _, opt := range opts {
		opt(&o)
	}
	raw, err := v.Use()
	if err != nil {
		return nil, err
	}
	h := e.Host()
	handle, code := h.CreateReference(e.Raw(), raw, o.initial, o.finalize)
	if terr := status.TranslateAt(code, status.PhaseRef, "create reference"); terr != nil {
		return nil, terr
	}
	return &Ref{host: h, raw: handle}, nil
}

// Incr increments the count and returns the new value.
func (r *Ref) Incr(e *env.Env) (uint32, error) {
	if err := r.live(); err != nil {
		return 0, err
	}
	n, code := r.host.RefIncr(e.Raw(), r.raw)
	if err := status.TranslateAt(code, status.PhaseRef, "increment reference"); err != nil {
		return 0, err
	}
	return n, nil
}

// Decr decrements the count and returns the new value. Decrementing a zero
// count fails; the count never goes negative. Reaching zero allows the host
// to reclaim the target while the Ref itself stays valid for bookkeeping.
func (r *Ref) Decr(e *env.Env) (uint32, error) {
	if err := r.live(); err != nil {
		return 0, err
	}
	n, code := r.host.RefDecr(e.Raw(), r.raw)
	if err := status.TranslateAt(code, status.PhaseRef, "decrement reference"); err != nil {
		return 0, err
	}
	return n, nil
}

// Value materializes the referenced target into scope s. Once the host has
// reclaimed the target this returns an error; it never hands back a dangling
// handle.
func (r *Ref) Value(e *env.Env, s *env.Scope) (env.Value, error) {
	if err := r.live(); err != nil {
		return env.Value{}, err
	}
	raw, code := r.host.RefValue(e.Raw(), r.raw)
	if err := status.TranslateAt(code, status.PhaseRef, "load reference value"); err != nil {
		return env.Value{}, err
	}
	if raw == abi.None {
		return env.Value{}, &status.Error{
			Phase:  status.PhaseRef,
			Code:   status.InvalidArg,
			Detail: "reference target already reclaimed",
		}
	}
	return s.Adopt(raw)
}

// Release consumes the reference and frees the host-side entry. Exactly one
// call succeeds; later calls (and any other operation) report an error
// instead of double-releasing.
func (r *Ref) Release(e *env.Env) error {
	if r.released.Swap(true) {
		return status.RefReleased()
	}
	return status.TranslateAt(r.host.DeleteReference(e.Raw(), r.raw),
		status.PhaseRef, "delete reference")
}

func (r *Ref) live() error {
	if r.released.Load() {
		return status.RefReleased()
	}
	return nil
}
