package fakehost

import (
	"math"
	"unicode/utf16"

	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/status"
)

// value is one host datum. Handles are slots pointing at a value; objects
// reference other values directly, so a datum outlives its handles as long
// as something on the host side still reaches it.
type value struct {
	kind abi.ValueKind

	b   bool
	num float64

	// big integers as sign and magnitude
	neg bool
	mag uint64

	str []uint16
	buf []byte

	obj *object
	fn  *function
	ext *external
}

type function struct {
	name string
	cb   abi.Callback
}

type external struct {
	token uint64
	fin   abi.FinalizeCallback
}

// finalizable tracks a value with a registered finalizer until GC or
// teardown runs it.
type finalizable struct {
	val  *value
	fin  abi.FinalizeCallback
	done bool
}

// slot is one handle table entry. Handles are slot index + 1; freed slots
// go on a free list for reuse.
type slot struct {
	val   *value
	valid bool
}

func (h *Host) lookup(v abi.ValueHandle) (*value, status.Code) {
	if v == abi.None || uint64(v) > uint64(len(h.slots)) {
		return nil, status.InvalidArg
	}
	s := h.slots[v-1]
	if !s.valid {
		return nil, status.InvalidArg
	}
	return s.val, status.OK
}

// adoptVal places val into the innermost open scope and returns its handle.
func (h *Host) adoptVal(val *value) (abi.ValueHandle, status.Code) {
	if len(h.scopes) == 0 {
		return abi.None, status.HandleScopeMismatch
	}
	return h.slotInScope(val, h.scopes[len(h.scopes)-1]), status.OK
}

func (h *Host) slotInScope(val *value, sc *scopeEntry) abi.ValueHandle {
	var hv abi.ValueHandle
	if k := len(h.freeSlots); k > 0 {
		hv = h.freeSlots[k-1]
		h.freeSlots = h.freeSlots[:k-1]
		h.slots[hv-1] = slot{val: val, valid: true}
	} else {
		h.slots = append(h.slots, slot{val: val, valid: true})
		hv = abi.ValueHandle(len(h.slots))
	}
	sc.slots = append(sc.slots, hv)
	h.stats.valuesCreated.Add(1)
	return hv
}

func (h *Host) dropSlot(v abi.ValueHandle) {
	if v == abi.None || uint64(v) > uint64(len(h.slots)) {
		return
	}
	s := &h.slots[v-1]
	if !s.valid {
		return
	}
	s.valid = false
	s.val = nil
	h.freeSlots = append(h.freeSlots, v)
}

func stringValue(s string) *value {
	return &value{kind: abi.KindString, str: utf16.Encode([]rune(s))}
}

func stringOf(v *value) string {
	return string(utf16.Decode(v.str))
}

// KindOf implements abi.Values.
func (h *Host) KindOf(envH abi.EnvHandle, v abi.ValueHandle) (abi.ValueKind, status.Code) {
	if code := h.barrier(envH, "KindOf"); code != status.OK {
		return abi.KindUndefined, code
	}
	val, code := h.lookup(v)
	if code != status.OK {
		return abi.KindUndefined, code
	}
	return val.kind, status.OK
}

// Undefined implements abi.Values.
func (h *Host) Undefined(envH abi.EnvHandle) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "Undefined"); code != status.OK {
		return abi.None, code
	}
	return h.adoptVal(h.undefVal)
}

// Null implements abi.Values.
func (h *Host) Null(envH abi.EnvHandle) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "Null"); code != status.OK {
		return abi.None, code
	}
	return h.adoptVal(h.nullVal)
}

// Global implements abi.Values.
func (h *Host) Global(envH abi.EnvHandle) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "Global"); code != status.OK {
		return abi.None, code
	}
	return h.adoptVal(h.globalVal)
}

// CreateBoolean implements abi.Values.
func (h *Host) CreateBoolean(envH abi.EnvHandle, b bool) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "CreateBoolean"); code != status.OK {
		return abi.None, code
	}
	return h.adoptVal(&value{kind: abi.KindBoolean, b: b})
}

// CreateNumber implements abi.Values.
func (h *Host) CreateNumber(envH abi.EnvHandle, n float64) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "CreateNumber"); code != status.OK {
		return abi.None, code
	}
	return h.adoptVal(&value{kind: abi.KindNumber, num: n})
}

// CreateStringUTF16 implements abi.Values. The units are copied; unpaired
// surrogates are stored as given.
func (h *Host) CreateStringUTF16(envH abi.EnvHandle, units []uint16) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "CreateStringUTF16"); code != status.OK {
		return abi.None, code
	}
	return h.adoptVal(&value{kind: abi.KindString, str: append([]uint16(nil), units...)})
}

// CreateBigIntInt64 implements abi.Values.
func (h *Host) CreateBigIntInt64(envH abi.EnvHandle, n int64) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "CreateBigIntInt64"); code != status.OK {
		return abi.None, code
	}
	if !h.caps.Has(abi.CapBigInt) {
		return abi.None, status.GenericFailure
	}
	v := &value{kind: abi.KindBigInt}
	if n < 0 {
		v.neg = true
		v.mag = uint64(-(n + 1)) + 1
	} else {
		v.mag = uint64(n)
	}
	return h.adoptVal(v)
}

// CreateBigIntUint64 implements abi.Values.
func (h *Host) CreateBigIntUint64(envH abi.EnvHandle, n uint64) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "CreateBigIntUint64"); code != status.OK {
		return abi.None, code
	}
	if !h.caps.Has(abi.CapBigInt) {
		return abi.None, status.GenericFailure
	}
	return h.adoptVal(&value{kind: abi.KindBigInt, mag: n})
}

// CreateBufferCopy implements abi.Values.
func (h *Host) CreateBufferCopy(envH abi.EnvHandle, data []byte) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "CreateBufferCopy"); code != status.OK {
		return abi.None, code
	}
	return h.adoptVal(&value{kind: abi.KindBuffer, buf: append([]byte(nil), data...)})
}

// CreateExternalBuffer implements abi.Values. The buffer aliases data; fin
// runs when the value is reclaimed.
func (h *Host) CreateExternalBuffer(envH abi.EnvHandle, data []byte, fin abi.FinalizeCallback) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "CreateExternalBuffer"); code != status.OK {
		return abi.None, code
	}
	if !h.caps.Has(abi.CapExternalBuffer) {
		return abi.None, status.GenericFailure
	}
	v := &value{kind: abi.KindBuffer, buf: data, ext: &external{fin: fin}}
	if fin != nil {
		h.finals = append(h.finals, &finalizable{val: v, fin: fin})
	}
	return h.adoptVal(v)
}

// CreateExternal implements abi.Values.
func (h *Host) CreateExternal(envH abi.EnvHandle, token uint64, fin abi.FinalizeCallback) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "CreateExternal"); code != status.OK {
		return abi.None, code
	}
	v := &value{kind: abi.KindExternal, ext: &external{token: token, fin: fin}}
	if fin != nil {
		h.finals = append(h.finals, &finalizable{val: v, fin: fin})
	}
	return h.adoptVal(v)
}

// BoolValue implements abi.Values.
func (h *Host) BoolValue(envH abi.EnvHandle, v abi.ValueHandle) (bool, status.Code) {
	if code := h.barrier(envH, "BoolValue"); code != status.OK {
		return false, code
	}
	val, code := h.lookup(v)
	if code != status.OK {
		return false, code
	}
	if val.kind != abi.KindBoolean {
		return false, status.BooleanExpected
	}
	return val.b, status.OK
}

// NumberValue implements abi.Values.
func (h *Host) NumberValue(envH abi.EnvHandle, v abi.ValueHandle) (float64, status.Code) {
	if code := h.barrier(envH, "NumberValue"); code != status.OK {
		return 0, code
	}
	val, code := h.lookup(v)
	if code != status.OK {
		return 0, code
	}
	if val.kind != abi.KindNumber {
		return 0, status.NumberExpected
	}
	return val.num, status.OK
}

// BigIntInt64 implements abi.Values. Out-of-range magnitudes report the
// two's-complement wrap with lossless false.
func (h *Host) BigIntInt64(envH abi.EnvHandle, v abi.ValueHandle) (int64, bool, status.Code) {
	if code := h.barrier(envH, "BigIntInt64"); code != status.OK {
		return 0, false, code
	}
	val, code := h.lookup(v)
	if code != status.OK {
		return 0, false, code
	}
	if val.kind != abi.KindBigInt {
		return 0, false, status.BigIntExpected
	}
	if !val.neg {
		if val.mag <= math.MaxInt64 {
			return int64(val.mag), true, status.OK
		}
		return int64(val.mag), false, status.OK
	}
	if val.mag <= 1<<63 {
		return -int64(val.mag-1) - 1, true, status.OK
	}
	return -int64(val.mag), false, status.OK
}

// BigIntUint64 implements abi.Values.
func (h *Host) BigIntUint64(envH abi.EnvHandle, v abi.ValueHandle) (uint64, bool, status.Code) {
	if code := h.barrier(envH, "BigIntUint64"); code != status.OK {
		return 0, false, code
	}
	val, code := h.lookup(v)
	if code != status.OK {
		return 0, false, code
	}
	if val.kind != abi.KindBigInt {
		return 0, false, status.BigIntExpected
	}
	if val.neg {
		return -val.mag, false, status.OK
	}
	return val.mag, true, status.OK
}

// StringUTF16 implements abi.Values.
func (h *Host) StringUTF16(envH abi.EnvHandle, v abi.ValueHandle) ([]uint16, status.Code) {
	if code := h.barrier(envH, "StringUTF16"); code != status.OK {
		return nil, code
	}
	val, code := h.lookup(v)
	if code != status.OK {
		return nil, code
	}
	if val.kind != abi.KindString {
		return nil, status.StringExpected
	}
	return append([]uint16(nil), val.str...), status.OK
}

// BufferData implements abi.Values. The returned slice aliases the value's
// backing bytes.
func (h *Host) BufferData(envH abi.EnvHandle, v abi.ValueHandle) ([]byte, status.Code) {
	if code := h.barrier(envH, "BufferData"); code != status.OK {
		return nil, code
	}
	val, code := h.lookup(v)
	if code != status.OK {
		return nil, code
	}
	if val.kind != abi.KindBuffer {
		return nil, status.BufferExpected
	}
	return val.buf, status.OK
}

// ExternalToken implements abi.Values.
func (h *Host) ExternalToken(envH abi.EnvHandle, v abi.ValueHandle) (uint64, status.Code) {
	if code := h.barrier(envH, "ExternalToken"); code != status.OK {
		return 0, code
	}
	val, code := h.lookup(v)
	if code != status.OK {
		return 0, code
	}
	if val.kind != abi.KindExternal || val.ext == nil {
		return 0, status.InvalidArg
	}
	return val.ext.token, status.OK
}

// describeValue renders a value for diagnostics only.
func describeValue(v *value) string {
	switch v.kind {
	case abi.KindString:
		return stringOf(v)
	case abi.KindObject, abi.KindArray:
		if v.obj != nil {
			if m, ok := v.obj.props["message"]; ok && m.kind == abi.KindString {
				if c, ok := v.obj.props["code"]; ok && c.kind == abi.KindString {
					return stringOf(c) + ": " + stringOf(m)
				}
				return stringOf(m)
			}
		}
		return v.kind.String()
	default:
		return v.kind.String()
	}
}
