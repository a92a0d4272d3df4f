package fakehost

import (
	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/status"
)

// scopeEntry is one open handle scope. Slots created while a scope is the
// innermost one belong to it and die when it closes.
type scopeEntry struct {
	id        abi.ScopeHandle
	escapable bool
	escaped   bool

	// hostOwned scopes bracket callback invocations; closing one from
	// addon code is a callback scope mismatch.
	hostOwned bool

	slots []abi.ValueHandle
}

func (h *Host) openScopeEntry(escapable, hostOwned bool) abi.ScopeHandle {
	h.nextScope++
	id := abi.ScopeHandle(h.nextScope)
	h.scopes = append(h.scopes, &scopeEntry{id: id, escapable: escapable, hostOwned: hostOwned})
	h.stats.scopesOpened.Add(1)
	return id
}

// OpenScope implements abi.Scopes.
func (h *Host) OpenScope(envH abi.EnvHandle) (abi.ScopeHandle, status.Code) {
	if code := h.check(envH, "OpenScope"); code != status.OK {
		return abi.None, code
	}
	return h.openScopeEntry(false, false), status.OK
}

// OpenEscapableScope implements abi.Scopes.
func (h *Host) OpenEscapableScope(envH abi.EnvHandle) (abi.ScopeHandle, status.Code) {
	if code := h.check(envH, "OpenEscapableScope"); code != status.OK {
		return abi.None, code
	}
	return h.openScopeEntry(true, false), status.OK
}

// CloseScope implements abi.Scopes. Only the innermost scope closes;
// anything else is a mismatch.
func (h *Host) CloseScope(envH abi.EnvHandle, s abi.ScopeHandle) status.Code {
	if code := h.check(envH, "CloseScope"); code != status.OK {
		return code
	}
	return h.closeScopeEntry(s, false)
}

func (h *Host) closeScopeEntry(s abi.ScopeHandle, hostClose bool) status.Code {
	n := len(h.scopes)
	if n == 0 {
		return status.HandleScopeMismatch
	}
	top := h.scopes[n-1]
	if top.id != s {
		for _, sc := range h.scopes[:n-1] {
			if sc.id == s {
				return status.HandleScopeMismatch
			}
		}
		return status.InvalidArg
	}
	if top.hostOwned && !hostClose {
		return status.CallbackScopeMismatch
	}
	for _, hv := range top.slots {
		h.dropSlot(hv)
	}
	h.scopes = h.scopes[:n-1]
	h.stats.scopesClosed.Add(1)
	return status.OK
}

// EscapeHandle implements abi.Scopes. The scope must be the innermost one;
// the promoted handle lands in the scope directly beneath it.
func (h *Host) EscapeHandle(envH abi.EnvHandle, s abi.ScopeHandle, v abi.ValueHandle) (abi.ValueHandle, status.Code) {
	if code := h.check(envH, "EscapeHandle"); code != status.OK {
		return abi.None, code
	}
	n := len(h.scopes)
	if n == 0 {
		return abi.None, status.InvalidArg
	}
	top := h.scopes[n-1]
	if top.id != s {
		return abi.None, status.HandleScopeMismatch
	}
	if !top.escapable {
		return abi.None, status.InvalidArg
	}
	if top.escaped {
		return abi.None, status.EscapeCalledTwice
	}
	if n < 2 {
		return abi.None, status.InvalidArg
	}
	val, code := h.lookup(v)
	if code != status.OK {
		return abi.None, code
	}
	top.escaped = true
	return h.slotInScope(val, h.scopes[n-2]), status.OK
}
