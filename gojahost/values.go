package gojahost

import (
	"math/big"
	"reflect"
	"strconv"
	"unicode/utf16"

	"github.com/dop251/goja"

	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/status"
)

// extTokenSym keys the hidden property that marks external values and
// carries their token. Symbols are runtime-independent in goja.
var extTokenSym = goja.NewSymbol("addonbridge:externalToken")

var (
	bigIntType      = reflect.TypeOf((*big.Int)(nil))
	arrayBufferType = reflect.TypeOf(goja.ArrayBuffer{})
)

// finalizable tracks a registered finalizer until teardown runs it. The
// engine gives no reclamation hook, so finalizers fire at teardown.
type finalizable struct {
	fin  abi.FinalizeCallback
	done bool
}

// slot is one handle table entry. Handles are slot index + 1; freed slots go
// on a free list for reuse. Dropping a slot only invalidates the handle; the
// engine keeps the value alive for as long as the script graph reaches it.
type slot struct {
	val   goja.Value
	valid bool
}

func (h *Host) lookup(v abi.ValueHandle) (goja.Value, status.Code) {
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
func (h *Host) adoptVal(val goja.Value) (abi.ValueHandle, status.Code) {
	if len(h.scopes) == 0 {
		return abi.None, status.HandleScopeMismatch
	}
	return h.slotInScope(val, h.scopes[len(h.scopes)-1]), status.OK
}

func (h *Host) slotInScope(val goja.Value, sc *scopeEntry) abi.ValueHandle {
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

// kindOf maps an engine value onto the boundary's kind lattice. Engine types
// outside it (symbols, wrapped Go values) read as plain objects.
func (h *Host) kindOf(v goja.Value) abi.ValueKind {
	if v == nil || goja.IsUndefined(v) {
		return abi.KindUndefined
	}
	if goja.IsNull(v) {
		return abi.KindNull
	}
	if obj, ok := v.(*goja.Object); ok {
		if _, fn := goja.AssertFunction(obj); fn {
			return abi.KindFunction
		}
		if obj.ExportType() == arrayBufferType {
			return abi.KindBuffer
		}
		if obj.GetSymbol(extTokenSym) != nil {
			return abi.KindExternal
		}
		if obj.ClassName() == "Array" {
			return abi.KindArray
		}
		return abi.KindObject
	}
	switch t := v.ExportType(); t.Kind() {
	case reflect.Bool:
		return abi.KindBoolean
	case reflect.Int64, reflect.Float64:
		return abi.KindNumber
	case reflect.String:
		return abi.KindString
	default:
		if t == bigIntType {
			return abi.KindBigInt
		}
		return abi.KindObject
	}
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
	return h.kindOf(val), status.OK
}

// Undefined implements abi.Values.
func (h *Host) Undefined(envH abi.EnvHandle) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "Undefined"); code != status.OK {
		return abi.None, code
	}
	return h.adoptVal(goja.Undefined())
}

// Null implements abi.Values.
func (h *Host) Null(envH abi.EnvHandle) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "Null"); code != status.OK {
		return abi.None, code
	}
	return h.adoptVal(goja.Null())
}

// Global implements abi.Values.
func (h *Host) Global(envH abi.EnvHandle) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "Global"); code != status.OK {
		return abi.None, code
	}
	return h.adoptVal(h.vm.GlobalObject())
}

// CreateBoolean implements abi.Values.
func (h *Host) CreateBoolean(envH abi.EnvHandle, b bool) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "CreateBoolean"); code != status.OK {
		return abi.None, code
	}
	return h.adoptVal(h.vm.ToValue(b))
}

// CreateNumber implements abi.Values.
func (h *Host) CreateNumber(envH abi.EnvHandle, n float64) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "CreateNumber"); code != status.OK {
		return abi.None, code
	}
	return h.adoptVal(h.vm.ToValue(n))
}

// CreateStringUTF16 implements abi.Values. The engine stores well-formed
// strings only, so unpaired surrogates become U+FFFD on the way in.
func (h *Host) CreateStringUTF16(envH abi.EnvHandle, units []uint16) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "CreateStringUTF16"); code != status.OK {
		return abi.None, code
	}
	return h.adoptVal(h.vm.ToValue(string(utf16.Decode(units))))
}

// CreateBigIntInt64 implements abi.Values.
func (h *Host) CreateBigIntInt64(envH abi.EnvHandle, n int64) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "CreateBigIntInt64"); code != status.OK {
		return abi.None, code
	}
	return h.adoptVal(h.vm.ToValue(big.NewInt(n)))
}

// CreateBigIntUint64 implements abi.Values.
func (h *Host) CreateBigIntUint64(envH abi.EnvHandle, n uint64) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "CreateBigIntUint64"); code != status.OK {
		return abi.None, code
	}
	return h.adoptVal(h.vm.ToValue(new(big.Int).SetUint64(n)))
}

// CreateBufferCopy implements abi.Values.
func (h *Host) CreateBufferCopy(envH abi.EnvHandle, data []byte) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "CreateBufferCopy"); code != status.OK {
		return abi.None, code
	}
	ab := h.vm.NewArrayBuffer(append([]byte(nil), data...))
	return h.adoptVal(h.vm.ToValue(ab))
}

// CreateExternalBuffer implements abi.Values. The ArrayBuffer aliases data;
// fin runs at teardown.
func (h *Host) CreateExternalBuffer(envH abi.EnvHandle, data []byte, fin abi.FinalizeCallback) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "CreateExternalBuffer"); code != status.OK {
		return abi.None, code
	}
	ab := h.vm.NewArrayBuffer(data)
	if fin != nil {
		h.finals = append(h.finals, &finalizable{fin: fin})
	}
	return h.adoptVal(h.vm.ToValue(ab))
}

// CreateExternal implements abi.Values. The token rides on a hidden symbol
// property, invisible to script enumeration.
func (h *Host) CreateExternal(envH abi.EnvHandle, token uint64, fin abi.FinalizeCallback) (abi.ValueHandle, status.Code) {
	if code := h.barrier(envH, "CreateExternal"); code != status.OK {
		return abi.None, code
	}
	obj := h.vm.NewObject()
	if err := obj.SetSymbol(extTokenSym, h.vm.ToValue(strconv.FormatUint(token, 10))); err != nil {
		return abi.None, status.GenericFailure
	}
	if fin != nil {
		h.finals = append(h.finals, &finalizable{fin: fin})
	}
	return h.adoptVal(obj)
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
	if h.kindOf(val) != abi.KindBoolean {
		return false, status.BooleanExpected
	}
	return val.ToBoolean(), status.OK
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
	if h.kindOf(val) != abi.KindNumber {
		return 0, status.NumberExpected
	}
	return val.ToFloat(), status.OK
}

// BigIntInt64 implements abi.Values. Out-of-range integers report the
// two's-complement wrap with lossless false.
func (h *Host) BigIntInt64(envH abi.EnvHandle, v abi.ValueHandle) (int64, bool, status.Code) {
	if code := h.barrier(envH, "BigIntInt64"); code != status.OK {
		return 0, false, code
	}
	val, code := h.lookup(v)
	if code != status.OK {
		return 0, false, code
	}
	b, ok := val.Export().(*big.Int)
	if !ok {
		return 0, false, status.BigIntExpected
	}
	if b.IsInt64() {
		return b.Int64(), true, status.OK
	}
	return int64(low64(b)), false, status.OK
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
	b, ok := val.Export().(*big.Int)
	if !ok {
		return 0, false, status.BigIntExpected
	}
	if b.IsUint64() {
		return b.Uint64(), true, status.OK
	}
	return low64(b), false, status.OK
}

var low64Mask = new(big.Int).SetUint64(^uint64(0))

// low64 reduces an arbitrary integer to its low 64 bits in two's complement.
func low64(b *big.Int) uint64 {
	return new(big.Int).And(b, low64Mask).Uint64()
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
	if h.kindOf(val) != abi.KindString {
		return nil, status.StringExpected
	}
	return utf16.Encode([]rune(val.String())), status.OK
}

// BufferData implements abi.Values. The returned slice aliases the
// ArrayBuffer's backing bytes.
func (h *Host) BufferData(envH abi.EnvHandle, v abi.ValueHandle) ([]byte, status.Code) {
	if code := h.barrier(envH, "BufferData"); code != status.OK {
		return nil, code
	}
	val, code := h.lookup(v)
	if code != status.OK {
		return nil, code
	}
	ab, ok := val.Export().(goja.ArrayBuffer)
	if !ok {
		return nil, status.BufferExpected
	}
	return ab.Bytes(), status.OK
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
	obj, ok := val.(*goja.Object)
	if !ok {
		return 0, status.InvalidArg
	}
	tok := obj.GetSymbol(extTokenSym)
	if tok == nil {
		return 0, status.InvalidArg
	}
	n, err := strconv.ParseUint(tok.String(), 10, 64)
	if err != nil {
		return 0, status.GenericFailure
	}
	return n, status.OK
}
