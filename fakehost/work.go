package fakehost

import (
	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/status"
)

// QueueWork implements abi.Works.
func (h *Host) QueueWork(execute func(), complete abi.WorkCompleteCallback) (abi.WorkHandle, status.Code) {
	h.mustLoop("QueueWork")
	if execute == nil {
		return abi.None, status.InvalidArg
	}
	w, code := h.pool.Submit(execute, complete)
	if code == status.OK {
		h.stats.worksQueued.Add(1)
	}
	return w, code
}

// CancelWork implements abi.Works. Safe from any goroutine.
func (h *Host) CancelWork(w abi.WorkHandle) status.Code {
	code := h.pool.Cancel(w)
	if code == status.OK {
		h.stats.worksCancelled.Add(1)
	}
	return code
}
