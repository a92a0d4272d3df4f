package env

import (
	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/status"
)

// Scope is one open handle scope. Scopes are created and closed exclusively
// by the wrapper (Enter, InScope, InEscapableScope), which is what makes an
// out-of-order close impossible to express.
type Scope struct {
	_         [0]func()
	env       *Env
	raw       abi.ScopeHandle
	parent    *Scope
	open      bool
	escapable bool
	escaped   bool
}

// EscapableScope is a Scope that can transfer exactly one value to its
// parent before closing.
type EscapableScope struct {
	Scope
}

// Value is a handle bound to the scope it was created in. It becomes
// unusable when that scope closes; it never crosses goroutines.
type Value struct {
	raw   abi.ValueHandle
	scope *Scope
}

// InScope runs fn inside a fresh handle scope. The scope closes on every
// exit path; values created in it die with it.
func (e *Env) InScope(fn func(*Scope) error) error {
	e.check()
	s, err := e.pushScope()
	if err != nil {
		return err
	}
	defer e.popScope(s)
	return fn(s)
}

// InEscapableScope runs fn inside a fresh escapable scope. fn escapes the
// one value it wants to keep and returns it; everything else dies with the
// scope.
func (e *Env) InEscapableScope(fn func(*EscapableScope) (Value, error)) (Value, error) {
	e.check()
	raw, code := e.host.OpenEscapableScope(e.raw)
	if err := status.TranslateAt(code, status.PhaseScope, "open escapable scope"); err != nil {
		return Value{}, err
	}
	es := &EscapableScope{Scope{
		env:       e,
		raw:       raw,
		parent:    e.top(),
		open:      true,
		escapable: true,
	}}
	e.scopes = append(e.scopes, &es.Scope)
	defer e.popScope(&es.Scope)
	return fn(es)
}

// Escape transfers v into the enclosing scope and returns the promoted
// value. Calling it a second time on the same scope fails with
// EscapeCalledTwice.
func (s *EscapableScope) Escape(v Value) (Value, error) {
	e := s.env
	e.check()
	if !s.open {
		return Value{}, errScopeClosed()
	}
	if s.escaped {
		return Value{}, status.TranslateAt(status.EscapeCalledTwice, status.PhaseScope,
			"escape already called for this scope")
	}
	if err := v.use(); err != nil {
		return Value{}, err
	}
	raw, code := e.host.EscapeHandle(e.raw, s.raw, v.raw)
	if err := status.TranslateAt(code, status.PhaseScope, "escape handle"); err != nil {
		return Value{}, err
	}
	s.escaped = true
	return Value{raw: raw, scope: s.parent}, nil
}

// Adopt wraps a raw handle produced by direct abi calls into a Value owned
// by this scope. This is the interop point for the convert and addon layers;
// the raw handle must have been issued for this scope's environment.
func (s *Scope) Adopt(raw abi.ValueHandle) (Value, error) {
	s.env.check()
	if !s.open {
		return Value{}, errScopeClosed()
	}
	if raw == abi.None {
		return Value{}, status.InvalidInput(status.PhaseScope, "zero value handle")
	}
	return Value{raw: raw, scope: s}, nil
}

// Env returns the environment this scope belongs to.
func (s *Scope) Env() *Env {
	s.env.check()
	return s.env
}

// usable verifies the scope belongs to e and can receive new handles. The
// host materializes every handle into the innermost open scope, so handing
// an outer scope to a value-producing operation would silently misattribute
// ownership; escape values that need to outlive the innermost scope instead.
func (s *Scope) usable(e *Env) error {
	if s == nil {
		return status.InvalidInput(status.PhaseScope, "nil scope")
	}
	if s.env != e {
		return status.InvalidInput(status.PhaseScope, "scope belongs to a different environment")
	}
	if !s.open {
		return errScopeClosed()
	}
	if e.top() != s {
		return status.InvalidInput(status.PhaseScope, "scope is not the innermost open scope")
	}
	return nil
}

func (e *Env) pushScope() (*Scope, error) {
	raw, code := e.host.OpenScope(e.raw)
	if err := status.TranslateAt(code, status.PhaseScope, "open scope"); err != nil {
		return nil, err
	}
	s := &Scope{env: e, raw: raw, parent: e.top(), open: true}
	e.scopes = append(e.scopes, s)
	return s, nil
}

// popScope closes the innermost scope. The bookkeeping makes anything else
// unreachable; a mismatch here means the boundary is corrupted, so fail fast.
func (e *Env) popScope(s *Scope) {
	if top := e.top(); top != s {
		panic("addon-bridge: handle scope closed out of order")
	}
	e.scopes = e.scopes[:len(e.scopes)-1]
	s.open = false
	if code := e.host.CloseScope(e.raw, s.raw); code != status.OK {
		panic("addon-bridge: host rejected scope close: " + code.String())
	}
}

// Raw exposes the underlying handle without liveness checks, for logging and
// identity comparison. Layers that pass the handle back to the host should
// call Use instead.
func (v Value) Raw() abi.ValueHandle {
	return v.raw
}

// Use validates the value and returns its raw handle for a direct abi call.
func (v Value) Use() (abi.ValueHandle, error) {
	if err := v.use(); err != nil {
		return abi.None, err
	}
	return v.raw, nil
}

// IsZero reports whether v is the zero Value rather than a real handle.
func (v Value) IsZero() bool {
	return v.raw == abi.None
}

// Kind asks the host what this value is.
func (v Value) Kind() (abi.ValueKind, error) {
	if err := v.use(); err != nil {
		return abi.KindUndefined, err
	}
	e := v.scope.env
	k, code := e.host.KindOf(e.raw, v.raw)
	if err := status.TranslateAt(code, status.PhaseCall, "value kind"); err != nil {
		return abi.KindUndefined, err
	}
	return k, nil
}

// use gates every read of the handle: the owning scope must still be open
// and the owning environment live and on-thread.
func (v Value) use() error {
	if v.scope == nil || v.raw == abi.None {
		return status.InvalidInput(status.PhaseScope, "zero value handle")
	}
	v.scope.env.check()
	if !v.scope.open {
		return errScopeClosed()
	}
	return nil
}

func errScopeClosed() *status.Error {
	return &status.Error{
		Phase:  status.PhaseScope,
		Code:   status.InvalidArg,
		Detail: "handle scope already closed",
	}
}
