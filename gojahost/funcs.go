package gojahost

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/status"
)

// CreateFunction implements abi.Functions. The returned function can be
// handed straight to scripts; every invocation, whether from script or
// from CallFunction, runs the callback inside a fresh host-owned scope and
// rethrows whatever exception the callback left pending.
func (h *Host) CreateFunction(envH abi.EnvHandle, name string, cb abi.Callback) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "CreateFunction"); code != status.OK {
		return abi.None, code
	}
	if cb == nil {
		return abi.None, status.InvalidArg
	}
	wrapper := func(call goja.FunctionCall) goja.Value {
		scopeID := h.openScopeEntry(false, true)

		this := call.This
		if this == nil {
			this = goja.Undefined()
		}
		thisH, _ := h.adoptVal(this)
		args := make([]abi.ValueHandle, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i], _ = h.adoptVal(a)
		}
		info := &abi.CallInfo{This: thisH, Args: args}

		var ret abi.ValueHandle
		func() {
			defer func() {
				if r := recover(); r != nil {
					Logger().Error("native callback panicked",
						zap.String("function", name),
						zap.Any("panic", r))
					h.pending = h.errorValue(status.GenericFailure.String(),
						fmt.Sprintf("callback %s panicked: %v", name, r))
					ret = abi.None
				}
			}()
			ret = cb(MainEnv, info)
		}()

		// Resolve the returned handle before the unwind reclaims its slot.
		var retVal goja.Value
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
			ex := h.pending
			h.pending = nil
			panic(ex)
		}
		if retVal == nil {
			retVal = goja.Undefined()
		}
		return retVal
	}
	return h.adoptVal(h.vm.ToValue(wrapper))
}

// CallFunction implements abi.Functions. A throw from the callee, native
// or script, becomes the pending exception and reports PendingException.
func (h *Host) CallFunction(envH abi.EnvHandle, recv, fn abi.ValueHandle, args []abi.ValueHandle) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "CallFunction"); code != status.OK {
		return abi.None, code
	}
	fnVal, code := h.lookup(fn)
	if code != status.OK {
		return abi.None, code
	}
	callable, ok := goja.AssertFunction(fnVal)
	if !ok {
		return abi.None, status.FunctionExpected
	}
	this := goja.Undefined()
	if recv != abi.None {
		if this, code = h.lookup(recv); code != status.OK {
			return abi.None, code
		}
	}
	callArgs := make([]goja.Value, len(args))
	for i, a := range args {
		if callArgs[i], code = h.lookup(a); code != status.OK {
			return abi.None, code
		}
	}

	ret, err := callable(this, callArgs...)
	if err != nil {
		var ex *goja.Exception
		if errors.As(err, &ex) {
			val := ex.Value()
			if val == nil {
				val = h.errorValue(status.GenericFailure.String(), ex.Error())
			}
			h.pending = val
			return abi.None, status.PendingException
		}
		Logger().Error("engine call failed", zap.Error(err))
		return abi.None, status.GenericFailure
	}
	if ret == nil {
		ret = goja.Undefined()
	}
	return h.adoptVal(ret)
}

// StrictEquals implements abi.Functions. The engine's === rules apply.
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
	return av.StrictEquals(bv), status.OK
}
