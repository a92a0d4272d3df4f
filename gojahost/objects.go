package gojahost

import (
	"strconv"

	"github.com/dop251/goja"

	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/status"
)

// Objects, arrays, and functions are all engine objects and can carry
// properties; everything else fails with ObjectExpected.

// CreateObject implements abi.Objects.
func (h *Host) CreateObject(envH abi.EnvHandle) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "CreateObject"); code != status.OK {
		return abi.None, code
	}
	return h.adoptVal(h.vm.NewObject())
}

// SetNamed implements abi.Objects. The object keeps the stored value alive
// independently of the handle's scope.
func (h *Host) SetNamed(envH abi.EnvHandle, obj abi.ValueHandle, name string, v abi.ValueHandle) status.Code {
	if code := h.barrier(envH, "SetNamed"); code != status.OK {
		return code
	}
	target, code := h.lookup(obj)
	if code != status.OK {
		return code
	}
	o, ok := target.(*goja.Object)
	if !ok {
		return status.ObjectExpected
	}
	val, code := h.lookup(v)
	if code != status.OK {
		return code
	}
	if err := o.Set(name, val); err != nil {
		return status.GenericFailure
	}
	return status.OK
}

// GetNamed implements abi.Objects. Missing properties read as undefined.
func (h *Host) GetNamed(envH abi.EnvHandle, obj abi.ValueHandle, name string) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "GetNamed"); code != status.OK {
		return abi.None, code
	}
	target, code := h.lookup(obj)
	if code != status.OK {
		return abi.None, code
	}
	o, ok := target.(*goja.Object)
	if !ok {
		return abi.None, status.ObjectExpected
	}
	val := o.Get(name)
	if val == nil {
		val = goja.Undefined()
	}
	return h.adoptVal(val)
}

// HasNamed implements abi.Objects. Like property access in the language,
// the prototype chain counts.
func (h *Host) HasNamed(envH abi.EnvHandle, obj abi.ValueHandle, name string) (bool, status.Code) {
	if code := h.barrier(envH, "HasNamed"); code != status.OK {
		return false, code
	}
	target, code := h.lookup(obj)
	if code != status.OK {
		return false, code
	}
	o, ok := target.(*goja.Object)
	if !ok {
		return false, status.ObjectExpected
	}
	return o.Get(name) != nil, status.OK
}

// OwnNames implements abi.Objects.
func (h *Host) OwnNames(envH abi.EnvHandle, obj abi.ValueHandle) ([]string, status.Code) {
	if code := h.barrier(envH, "OwnNames"); code != status.OK {
		return nil, code
	}
	target, code := h.lookup(obj)
	if code != status.OK {
		return nil, code
	}
	o, ok := target.(*goja.Object)
	if !ok {
		return nil, status.ObjectExpected
	}
	return o.Keys(), status.OK
}

// CreateArray implements abi.Objects. Unset elements read as undefined.
func (h *Host) CreateArray(envH abi.EnvHandle, length int) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "CreateArray"); code != status.OK {
		return abi.None, code
	}
	if length < 0 {
		return abi.None, status.InvalidArg
	}
	arr := h.vm.NewArray()
	if length > 0 {
		if err := arr.Set("length", length); err != nil {
			return abi.None, status.GenericFailure
		}
	}
	return h.adoptVal(arr)
}

// ArrayLength implements abi.Objects.
func (h *Host) ArrayLength(envH abi.EnvHandle, arr abi.ValueHandle) (uint32, status.Code) {
	if code := h.barrier(envH, "ArrayLength"); code != status.OK {
		return 0, code
	}
	target, code := h.lookup(arr)
	if code != status.OK {
		return 0, code
	}
	if h.kindOf(target) != abi.KindArray {
		return 0, status.ArrayExpected
	}
	o := target.(*goja.Object)
	return uint32(o.Get("length").ToInteger()), status.OK
}

// SetElement implements abi.Objects. Writing past the end grows the array.
func (h *Host) SetElement(envH abi.EnvHandle, arr abi.ValueHandle, idx uint32, v abi.ValueHandle) status.Code {
	if code := h.barrier(envH, "SetElement"); code != status.OK {
		return code
	}
	target, code := h.lookup(arr)
	if code != status.OK {
		return code
	}
	if h.kindOf(target) != abi.KindArray {
		return status.ArrayExpected
	}
	val, code := h.lookup(v)
	if code != status.OK {
		return code
	}
	o := target.(*goja.Object)
	if err := o.Set(strconv.FormatUint(uint64(idx), 10), val); err != nil {
		return status.GenericFailure
	}
	return status.OK
}

// GetElement implements abi.Objects. Out-of-range reads are undefined.
func (h *Host) GetElement(envH abi.EnvHandle, arr abi.ValueHandle, idx uint32) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "GetElement"); code != status.OK {
		return abi.None, code
	}
	target, code := h.lookup(arr)
	if code != status.OK {
		return abi.None, code
	}
	if h.kindOf(target) != abi.KindArray {
		return abi.None, status.ArrayExpected
	}
	o := target.(*goja.Object)
	val := o.Get(strconv.FormatUint(uint64(idx), 10))
	if val == nil {
		val = goja.Undefined()
	}
	return h.adoptVal(val)
}
