package fakehost

import (
	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/status"
)

// object backs objects, arrays, and function property bags. Property
// insertion order is preserved; named properties and array elements are
// independent.
type object struct {
	keys  []string
	props map[string]*value
	elems []*value
}

func newObject() *object {
	return &object{props: make(map[string]*value)}
}

func (o *object) set(name string, v *value) {
	if _, ok := o.props[name]; !ok {
		o.keys = append(o.keys, name)
	}
	o.props[name] = v
}

func objectValue() *value {
	return &value{kind: abi.KindObject, obj: newObject()}
}

// propHolder returns the property bag of values that can carry properties.
func propHolder(val *value) *object {
	switch val.kind {
	case abi.KindObject, abi.KindArray, abi.KindFunction:
		return val.obj
	default:
		return nil
	}
}

// CreateObject implements abi.Objects.
func (h *Host) CreateObject(envH abi.EnvHandle) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "CreateObject"); code != status.OK {
		return abi.None, code
	}
	return h.adoptVal(objectValue())
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
	bag := propHolder(target)
	if bag == nil {
		return status.ObjectExpected
	}
	val, code := h.lookup(v)
	if code != status.OK {
		return code
	}
	bag.set(name, val)
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
	bag := propHolder(target)
	if bag == nil {
		return abi.None, status.ObjectExpected
	}
	val, ok := bag.props[name]
	if !ok {
		val = h.undefVal
	}
	return h.adoptVal(val)
}

// HasNamed implements abi.Objects.
func (h *Host) HasNamed(envH abi.EnvHandle, obj abi.ValueHandle, name string) (bool, status.Code) {
	if code := h.barrier(envH, "HasNamed"); code != status.OK {
		return false, code
	}
	target, code := h.lookup(obj)
	if code != status.OK {
		return false, code
	}
	bag := propHolder(target)
	if bag == nil {
		return false, status.ObjectExpected
	}
	_, ok := bag.props[name]
	return ok, status.OK
}

// OwnNames implements abi.Objects. Names come back in insertion order.
func (h *Host) OwnNames(envH abi.EnvHandle, obj abi.ValueHandle) ([]string, status.Code) {
	if code := h.barrier(envH, "OwnNames"); code != status.OK {
		return nil, code
	}
	target, code := h.lookup(obj)
	if code != status.OK {
		return nil, code
	}
	bag := propHolder(target)
	if bag == nil {
		return nil, status.ObjectExpected
	}
	return append([]string(nil), bag.keys...), status.OK
}

// CreateArray implements abi.Objects. Unset elements read as undefined.
func (h *Host) CreateArray(envH abi.EnvHandle, length int) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "CreateArray"); code != status.OK {
		return abi.None, code
	}
	if length < 0 {
		return abi.None, status.InvalidArg
	}
	return h.adoptVal(&value{
		kind: abi.KindArray,
		obj:  &object{props: make(map[string]*value), elems: make([]*value, length)},
	})
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
	if target.kind != abi.KindArray {
		return 0, status.ArrayExpected
	}
	return uint32(len(target.obj.elems)), status.OK
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
	if target.kind != abi.KindArray {
		return status.ArrayExpected
	}
	val, code := h.lookup(v)
	if code != status.OK {
		return code
	}
	for uint32(len(target.obj.elems)) <= idx {
		target.obj.elems = append(target.obj.elems, nil)
	}
	target.obj.elems[idx] = val
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
	if target.kind != abi.KindArray {
		return abi.None, status.ArrayExpected
	}
	var val *value
	if idx < uint32(len(target.obj.elems)) {
		val = target.obj.elems[idx]
	}
	if val == nil {
		val = h.undefVal
	}
	return h.adoptVal(val)
}
