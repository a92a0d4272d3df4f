package fakehost

import (
	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/status"
)

// reference is one host-side reference table entry. A positive count pins
// the target; at zero the target may be reclaimed by GC, after which the
// entry reads as empty until deleted.
type reference struct {
	val   *value
	count uint32
}

// CreateReference implements abi.References. Reference operations stay
// usable while an exception is pending so unwinding code can release
// what it holds.
func (h *Host) CreateReference(envH abi.EnvHandle, v abi.ValueHandle, initial uint32, fin abi.FinalizeCallback) (abi.RefHandle, status.Code) {
	if code := h.check(envH, "CreateReference"); code != status.OK {
		return abi.None, code
	}
	val, code := h.lookup(v)
	if code != status.OK {
		return abi.None, code
	}
	if fin != nil {
		h.finals = append(h.finals, &finalizable{val: val, fin: fin})
	}
	h.nextRef++
	r := abi.RefHandle(h.nextRef)
	h.refs[r] = &reference{val: val, count: initial}
	h.stats.refsCreated.Add(1)
	return r, status.OK
}

// RefIncr implements abi.References.
func (h *Host) RefIncr(envH abi.EnvHandle, r abi.RefHandle) (uint32, status.Code) {
	if code := h.check(envH, "RefIncr"); code != status.OK {
		return 0, code
	}
	ref, ok := h.refs[r]
	if !ok {
		return 0, status.InvalidArg
	}
	ref.count++
	return ref.count, status.OK
}

// RefDecr implements abi.References. Counts saturate: decrementing zero
// fails instead of wrapping.
func (h *Host) RefDecr(envH abi.EnvHandle, r abi.RefHandle) (uint32, status.Code) {
	if code := h.check(envH, "RefDecr"); code != status.OK {
		return 0, code
	}
	ref, ok := h.refs[r]
	if !ok {
		return 0, status.InvalidArg
	}
	if ref.count == 0 {
		return 0, status.GenericFailure
	}
	ref.count--
	return ref.count, status.OK
}

// RefValue implements abi.References. A reclaimed target reads as handle 0
// with OK.
func (h *Host) RefValue(envH abi.EnvHandle, r abi.RefHandle) (abi.ValueHandle, status.Code) {
	if code := h.check(envH, "RefValue"); code != status.OK {
		return abi.None, code
	}
	ref, ok := h.refs[r]
	if !ok {
		return abi.None, status.InvalidArg
	}
	if ref.val == nil {
		return abi.None, status.OK
	}
	return h.adoptVal(ref.val)
}

// DeleteReference implements abi.References. Deleting does not run the
// finalizer; that happens when the target is reclaimed or at teardown.
func (h *Host) DeleteReference(envH abi.EnvHandle, r abi.RefHandle) status.Code {
	if code := h.check(envH, "DeleteReference"); code != status.OK {
		return code
	}
	if _, ok := h.refs[r]; !ok {
		return status.InvalidArg
	}
	delete(h.refs, r)
	return status.OK
}
