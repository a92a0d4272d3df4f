package env

import (
	"fmt"

	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/internal/goroutineid"
	"github.com/wippyai/addon-bridge/status"
)

// Env wraps one live environment call context. It is only obtainable through
// Enter and becomes unusable the moment Enter returns.
type Env struct {
	_      [0]func() // non-comparable; always pass by pointer
	host   abi.Host
	raw    abi.EnvHandle
	gid    int64
	alive  bool
	scopes []*Scope // innermost last
}

// Enter adopts a host-issued environment handle for the duration of fn. It
// opens the root handle scope, runs fn, and tears both down on every exit
// path, panics included. Hosts invoke native callbacks through this (either
// directly or via the addon package), always on the environment thread.
func Enter(h abi.Host, raw abi.EnvHandle, fn func(*Env) error) error {
	if h == nil {
		return status.InvalidInput(status.PhaseCall, "nil host")
	}
	if raw == abi.None {
		return status.InvalidInput(status.PhaseCall, "zero environment handle")
	}

	e := &Env{
		host:  h,
		raw:   raw,
		gid:   goroutineid.Current(),
		alive: true,
	}
	defer func() { e.alive = false }()

	root, err := e.pushScope()
	if err != nil {
		return err
	}
	defer e.popScope(root)

	return fn(e)
}

// EnterCallback adopts a host-issued environment handle for one native
// callback invocation. It differs from Enter in that the root scope is
// escapable: the value fn returns is promoted into the host's own scope
// around the invocation, so the raw handle stays valid as the callback
// result after all wrapper scopes are gone. Returns abi.None when fn
// returns a zero Value or an error.
func EnterCallback(h abi.Host, raw abi.EnvHandle, fn func(*Env) (Value, error)) (abi.ValueHandle, error) {
	if h == nil {
		return abi.None, status.InvalidInput(status.PhaseCall, "nil host")
	}
	if raw == abi.None {
		return abi.None, status.InvalidInput(status.PhaseCall, "zero environment handle")
	}

	e := &Env{
		host:  h,
		raw:   raw,
		gid:   goroutineid.Current(),
		alive: true,
	}
	defer func() { e.alive = false }()

	rawScope, code := h.OpenEscapableScope(raw)
	if err := status.TranslateAt(code, status.PhaseScope, "open root scope"); err != nil {
		return abi.None, err
	}
	root := &EscapableScope{Scope{
		env:       e,
		raw:       rawScope,
		open:      true,
		escapable: true,
	}}
	e.scopes = append(e.scopes, &root.Scope)
	defer e.popScope(&root.Scope)

	v, err := fn(e)
	if err != nil || v.IsZero() {
		return abi.None, err
	}
	out, err := root.Escape(v)
	if err != nil {
		return abi.None, err
	}
	return out.Raw(), nil
}

// check fails fast on the two misuses that cannot be reported as errors:
// a wrapper outliving its call, and use from a foreign goroutine.
func (e *Env) check() {
	if !e.alive {
		panic("addon-bridge: environment used after its host call returned")
	}
	if affinityChecks {
		if gid := goroutineid.Current(); gid != e.gid {
			panic(fmt.Sprintf(
				"addon-bridge: environment entered on goroutine %d used from goroutine %d",
				e.gid, gid))
		}
	}
}

// Host returns the boundary function table behind this environment. Unlike
// the environment itself, the table stays valid after the call returns; the
// callqueue and asyncwork packages rely on that.
func (e *Env) Host() abi.Host {
	e.check()
	return e.host
}

// Raw exposes the underlying handle for layers that speak abi directly.
func (e *Env) Raw() abi.EnvHandle {
	e.check()
	return e.raw
}

// Capabilities reports the host's optional features.
func (e *Env) Capabilities() abi.Capability {
	e.check()
	return e.host.Capabilities()
}

// Scope returns the innermost open handle scope.
func (e *Env) Scope() *Scope {
	e.check()
	return e.top()
}

// ExceptionPending reports whether a host exception is pending without
// clearing it.
func (e *Env) ExceptionPending() (bool, error) {
	e.check()
	pending, code := e.host.ExceptionPending(e.raw)
	if err := status.TranslateAt(code, status.PhaseCall, "check pending exception"); err != nil {
		return false, err
	}
	return pending, nil
}

// ClearPending removes and returns the pending exception. The second result
// is false when nothing was pending.
func (e *Env) ClearPending(s *Scope) (Value, bool, error) {
	e.check()
	if err := s.usable(e); err != nil {
		return Value{}, false, err
	}
	raw, code := e.host.GetAndClearException(e.raw)
	if err := status.TranslateAt(code, status.PhaseCall, "clear pending exception"); err != nil {
		return Value{}, false, err
	}
	if raw == abi.None {
		return Value{}, false, nil
	}
	return Value{raw: raw, scope: s}, true, nil
}

// Throw converts a native error into a pending host exception. The status
// code carried by err becomes the host error code. When err already reports
// PendingException the host-side exception is left untouched.
func (e *Env) Throw(err error) error {
	e.check()
	if err == nil {
		return nil
	}
	code := status.CodeOf(err)
	if code == status.PendingException {
		return nil
	}
	return status.TranslateAt(e.host.ThrowError(e.raw, code.String(), err.Error()),
		status.PhaseCall, "throw error")
}

// ThrowValue sets an existing host value as the pending exception.
func (e *Env) ThrowValue(v Value) error {
	e.check()
	if err := v.use(); err != nil {
		return err
	}
	return status.TranslateAt(e.host.ThrowValue(e.raw, v.raw), status.PhaseCall, "throw value")
}

// CreateError builds a host error value without throwing it.
func (e *Env) CreateError(s *Scope, code, msg string) (Value, error) {
	e.check()
	if err := s.usable(e); err != nil {
		return Value{}, err
	}
	raw, c := e.host.CreateError(e.raw, code, msg)
	if err := status.TranslateAt(c, status.PhaseCall, "create error value"); err != nil {
		return Value{}, err
	}
	return Value{raw: raw, scope: s}, nil
}

// Undefined returns the undefined sentinel in scope s.
func (e *Env) Undefined(s *Scope) (Value, error) {
	return e.adoptPrimitive(s, e.host.Undefined)
}

// Null returns the null sentinel in scope s.
func (e *Env) Null(s *Scope) (Value, error) {
	return e.adoptPrimitive(s, e.host.Null)
}

// Global returns the host global object in scope s.
func (e *Env) Global(s *Scope) (Value, error) {
	return e.adoptPrimitive(s, e.host.Global)
}

func (e *Env) adoptPrimitive(s *Scope, get func(abi.EnvHandle) (abi.ValueHandle, status.Code)) (Value, error) {
	e.check()
	if err := s.usable(e); err != nil {
		return Value{}, err
	}
	raw, code := get(e.raw)
	if err := status.TranslateAt(code, status.PhaseCall, "get singleton value"); err != nil {
		return Value{}, err
	}
	return Value{raw: raw, scope: s}, nil
}

// CreateFunction exposes a raw native callback as a host function value.
// Most code should register functions through the addon package instead,
// which layers marshaling and error-to-exception conversion on top.
func (e *Env) CreateFunction(s *Scope, name string, cb abi.Callback) (Value, error) {
	e.check()
	if err := s.usable(e); err != nil {
		return Value{}, err
	}
	if cb == nil {
		return Value{}, status.InvalidInput(status.PhaseCall, "nil callback")
	}
	raw, code := e.host.CreateFunction(e.raw, name, cb)
	if err := status.TranslateAt(code, status.PhaseCall, "create function"); err != nil {
		return Value{}, err
	}
	return Value{raw: raw, scope: s}, nil
}

// CallFunction invokes a host function value. A host-side throw surfaces as
// a PendingException error with the exception left pending for the caller
// to clear or propagate.
func (e *Env) CallFunction(s *Scope, recv, fn Value, args ...Value) (Value, error) {
	e.check()
	if err := s.usable(e); err != nil {
		return Value{}, err
	}
	if err := fn.use(); err != nil {
		return Value{}, err
	}
	rawArgs := make([]abi.ValueHandle, len(args))
	for i, a := range args {
		if err := a.use(); err != nil {
			return Value{}, err
		}
		rawArgs[i] = a.raw
	}
	var recvRaw abi.ValueHandle
	if recv.raw != abi.None {
		if err := recv.use(); err != nil {
			return Value{}, err
		}
		recvRaw = recv.raw
	}
	raw, code := e.host.CallFunction(e.raw, recvRaw, fn.raw, rawArgs)
	if err := status.TranslateAt(code, status.PhaseCall, "call function"); err != nil {
		return Value{}, err
	}
	return Value{raw: raw, scope: s}, nil
}

// StrictEquals compares two values with host identity semantics.
func (e *Env) StrictEquals(a, b Value) (bool, error) {
	e.check()
	if err := a.use(); err != nil {
		return false, err
	}
	if err := b.use(); err != nil {
		return false, err
	}
	eq, code := e.host.StrictEquals(e.raw, a.raw, b.raw)
	if err := status.TranslateAt(code, status.PhaseCall, "strict equals"); err != nil {
		return false, err
	}
	return eq, nil
}

// AddCleanup registers fn to run when the host environment is torn down.
func (e *Env) AddCleanup(fn func()) error {
	e.check()
	if fn == nil {
		return status.InvalidInput(status.PhaseCall, "nil cleanup callback")
	}
	return status.TranslateAt(e.host.AddCleanup(fn), status.PhaseCall, "add cleanup hook")
}

func (e *Env) top() *Scope {
	if n := len(e.scopes); n > 0 {
		return e.scopes[n-1]
	}
	return nil
}
