package fakehost

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/status"
)

// CreateFunction implements abi.Functions.
func (h *Host) CreateFunction(envH abi.EnvHandle, name string, cb abi.Callback) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "CreateFunction"); code != status.OK {
		return abi.None, code
	}
	if cb == nil {
		return abi.None, status.InvalidArg
	}
	return h.adoptVal(&value{
		kind: abi.KindFunction,
		fn:   &function{name: name, cb: cb},
		obj:  newObject(),
	})
}

// CallFunction implements abi.Functions. The callback runs inside a
// host-owned scope; the returned handle is rehomed into the caller's scope
// before that scope closes. A pending exception after the callback reports
// PendingException with the exception left in place.
func (h *Host) CallFunction(envH abi.EnvHandle, recv, fn abi.ValueHandle, args []abi.ValueHandle) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "CallFunction"); code != status.OK {
		return abi.None, code
	}
	fnVal, code := h.lookup(fn)
	if code != status.OK {
		return abi.None, code
	}
	if fnVal.kind != abi.KindFunction || fnVal.fn == nil {
		return abi.None, status.FunctionExpected
	}
	if recv != abi.None {
		if _, code := h.lookup(recv); code != status.OK {
			return abi.None, code
		}
	}
	for _, a := range args {
		if _, code := h.lookup(a); code != status.OK {
			return abi.None, code
		}
	}

	info := &abi.CallInfo{This: recv, Args: args}
	scopeID := h.openScopeEntry(false, true)
	h.stats.callbacksInvoked.Add(1)

	var ret abi.ValueHandle
	func() {
		defer func() {
			if r := recover(); r != nil {
				Logger().Error("native callback panicked",
					zap.String("function", fnVal.fn.name),
					zap.Any("panic", r))
				h.pending = h.errorValue(status.GenericFailure.String(),
					fmt.Sprintf("callback %s panicked: %v", fnVal.fn.name, r))
				ret = abi.None
			}
		}()
		ret = fnVal.fn.cb(MainEnv, info)
	}()

	var retVal *value
	if ret != abi.None {
		if rv, code := h.lookup(ret); code == status.OK {
			retVal = rv
		}
	}

	// Unwind any scopes a misbehaving callback left open, then the
	// host-owned one.
	for len(h.scopes) > 0 {
		top := h.scopes[len(h.scopes)-1]
		if c := h.closeScopeEntry(top.id, true); c != status.OK {
			Logger().Error("scope unwind failed", zap.String("code", c.String()))
			break
		}
		if top.id == scopeID {
			break
		}
	}

	if h.pending != nil {
		return abi.None, status.PendingException
	}
	if retVal == nil {
		retVal = h.undefVal
	}
	return h.adoptVal(retVal)
}

// StrictEquals implements abi.Functions. Primitives compare by content,
// everything else by identity; NaN never equals itself.
func (h *Host) StrictEquals(envH abi.EnvHandle, a, b abi.ValueHandle) (bool, status.Code) {
	if code := h.barrier(envH, "StrictEquals"); code != status.OK {
		return false, code
	}
	av, code := h.lookup(a)
	if code != status.OK {
		return false, code
	}
	bv, code := h.lookup(b)
	if code != status.OK {
		return false, code
	}
	return strictEquals(av, bv), status.OK
}

func strictEquals(a, b *value) bool {
	if a == b {
		return true
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case abi.KindUndefined, abi.KindNull:
		return true
	case abi.KindBoolean:
		return a.b == b.b
	case abi.KindNumber:
		return a.num == b.num
	case abi.KindString:
		if len(a.str) != len(b.str) {
			return false
		}
		for i := range a.str {
			if a.str[i] != b.str[i] {
				return false
			}
		}
		return true
	case abi.KindBigInt:
		if a.mag == 0 && b.mag == 0 {
			return true
		}
		return a.neg == b.neg && a.mag == b.mag
	default:
		return false
	}
}
