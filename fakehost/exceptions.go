package fakehost

import (
	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/status"
)

// errorValue builds the host's error shape: an object with code and
// message string properties.
func (h *Host) errorValue(code, msg string) *value {
	v := objectValue()
	v.obj.set("code", stringValue(code))
	v.obj.set("message", stringValue(msg))
	return v
}

// ExceptionPending implements abi.Environments. Checking never clears.
func (h *Host) ExceptionPending(envH abi.EnvHandle) (bool, status.Code) {
	if code := h.check(envH, "ExceptionPending"); code != status.OK {
		return false, code
	}
	return h.pending != nil, status.OK
}

// ThrowValue implements abi.Environments. Throwing over a pending
// exception fails with PendingException and leaves the first one in place.
func (h *Host) ThrowValue(envH abi.EnvHandle, v abi.ValueHandle) status.Code {
	if code := h.check(envH, "ThrowValue"); code != status.OK {
		return code
	}
	if h.pending != nil {
		return status.PendingException
	}
	val, code := h.lookup(v)
	if code != status.OK {
		return code
	}
	h.pending = val
	return status.OK
}

// ThrowError implements abi.Environments.
func (h *Host) ThrowError(envH abi.EnvHandle, code, msg string) status.Code {
	if c := h.check(envH, "ThrowError"); c != status.OK {
		return c
	}
	if h.pending != nil {
		return status.PendingException
	}
	h.pending = h.errorValue(code, msg)
	return status.OK
}

// GetAndClearException implements abi.Environments. Returns handle 0 with
// OK when nothing is pending.
func (h *Host) GetAndClearException(envH abi.EnvHandle) (abi.ValueHandle, status.Code) {
	if code := h.check(envH, "GetAndClearException"); code != status.OK {
		return abi.None, code
	}
	if h.pending == nil {
		return abi.None, status.OK
	}
	val := h.pending
	h.pending = nil
	return h.adoptVal(val)
}

// CreateError implements abi.Environments. Error construction stays usable
// while an exception is pending so handlers can build replacements.
func (h *Host) CreateError(envH abi.EnvHandle, code, msg string) (abi.ValueHandle, status.Code) {
	if c := h.check(envH, "CreateError"); c != status.OK {
		return abi.None, c
	}
	return h.adoptVal(h.errorValue(code, msg))
}
