package gojahost

import (
	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/status"
)

// QueueWork implements abi.Work. Execution happens on a pool goroutine;
// the completion callback always comes back through the event loop.
func (h *Host) QueueWork(execute func(), complete abi.WorkCompleteCallback) (abi.WorkHandle, status.Code) {
	h.mustLoop("QueueWork")
	if execute == nil {
		return abi.None, status.InvalidArg
	}
	return h.pool.Submit(execute, complete)
}

// CancelWork implements abi.Work. Only work still waiting in the queue can
// be cancelled.
func (h *Host) CancelWork(w abi.WorkHandle) status.Code {
	return h.pool.Cancel(w)
}
