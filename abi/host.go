package abi

import (
	"github.com/wippyai/addon-bridge/status"
)

// CallInfo describes one host-to-native invocation.
type CallInfo struct {
	This ValueHandle
	Args []ValueHandle
}

// Callback is the raw shape of a native function exposed to the host. The
// host keeps a handle scope of its own open around each invocation; the
// returned handle becomes the call result and must be valid in that scope.
// Return 0 for undefined. If the callback leaves an exception pending, the
// host throws it after return and ignores the result.
type Callback func(env EnvHandle, info *CallInfo) ValueHandle

// DispatchCallback runs on the environment thread with a fresh handle valid
// only for the callback's duration.
type DispatchCallback func(env EnvHandle)

// WorkCompleteCallback runs on the environment thread after background work
// finished or was cancelled. The code is status.OK or status.Cancelled.
type WorkCompleteCallback func(env EnvHandle, c status.Code)

// FinalizeCallback releases native state tied to a host value or reference.
// The host invokes it at most once, on the environment thread.
type FinalizeCallback func()

// Environments groups exception and error-value entry points.
type Environments interface {
	// ExceptionPending reports whether an exception is pending in env.
	// Checking never clears it.
	ExceptionPending(env EnvHandle) (bool, status.Code)

	// ThrowValue sets v as env's pending exception.
	ThrowValue(env EnvHandle, v ValueHandle) status.Code

	// ThrowError builds a host error value from code and msg and sets it
	// pending.
	ThrowError(env EnvHandle, code, msg string) status.Code

	// GetAndClearException removes and returns the pending exception.
	// Returns handle 0 with status.OK when nothing is pending.
	GetAndClearException(env EnvHandle) (ValueHandle, status.Code)

	// CreateError builds a host error value without throwing it.
	CreateError(env EnvHandle, code, msg string) (ValueHandle, status.Code)
}

// Scopes groups handle scope entry points. Scopes close strictly LIFO;
// closing anything but the innermost open scope returns
// status.HandleScopeMismatch.
type Scopes interface {
	OpenScope(env EnvHandle) (ScopeHandle, status.Code)
	CloseScope(env EnvHandle, s ScopeHandle) status.Code
	OpenEscapableScope(env EnvHandle) (ScopeHandle, status.Code)

	// EscapeHandle promotes v from escapable scope s into the enclosing
	// scope. A second escape from the same scope returns
	// status.EscapeCalledTwice.
	EscapeHandle(env EnvHandle, s ScopeHandle, v ValueHandle) (ValueHandle, status.Code)
}

// Values groups creation and inspection of primitive host values.
type Values interface {
	KindOf(env EnvHandle, v ValueHandle) (ValueKind, status.Code)

	Undefined(env EnvHandle) (ValueHandle, status.Code)
	Null(env EnvHandle) (ValueHandle, status.Code)
	Global(env EnvHandle) (ValueHandle, status.Code)

	CreateBoolean(env EnvHandle, b bool) (ValueHandle, status.Code)
	CreateNumber(env EnvHandle, n float64) (ValueHandle, status.Code)
	CreateStringUTF16(env EnvHandle, units []uint16) (ValueHandle, status.Code)

	// CreateBigIntInt64 and CreateBigIntUint64 require CapBigInt.
	CreateBigIntInt64(env EnvHandle, n int64) (ValueHandle, status.Code)
	CreateBigIntUint64(env EnvHandle, n uint64) (ValueHandle, status.Code)

	// CreateBufferCopy copies data into host-owned memory.
	CreateBufferCopy(env EnvHandle, data []byte) (ValueHandle, status.Code)

	// CreateExternalBuffer aliases data without copying and invokes fin when
	// the buffer is reclaimed. Requires CapExternalBuffer.
	CreateExternalBuffer(env EnvHandle, data []byte, fin FinalizeCallback) (ValueHandle, status.Code)

	// CreateExternal wraps an opaque native token. fin runs when the value
	// is reclaimed.
	CreateExternal(env EnvHandle, token uint64, fin FinalizeCallback) (ValueHandle, status.Code)

	BoolValue(env EnvHandle, v ValueHandle) (bool, status.Code)
	NumberValue(env EnvHandle, v ValueHandle) (float64, status.Code)

	// BigIntInt64 reports lossless=false when the host integer does not fit.
	BigIntInt64(env EnvHandle, v ValueHandle) (n int64, lossless bool, c status.Code)
	BigIntUint64(env EnvHandle, v ValueHandle) (n uint64, lossless bool, c status.Code)

	// StringUTF16 returns the value's UTF-16 code units, unpaired surrogates
	// included.
	StringUTF16(env EnvHandle, v ValueHandle) ([]uint16, status.Code)

	// BufferData returns the buffer's backing bytes. The slice aliases host
	// memory and is valid only while the value is; callers that retain the
	// data must copy it.
	BufferData(env EnvHandle, v ValueHandle) ([]byte, status.Code)

	// ExternalToken returns the token passed to CreateExternal.
	ExternalToken(env EnvHandle, v ValueHandle) (uint64, status.Code)
}

// Objects groups property and element access.
type Objects interface {
	CreateObject(env EnvHandle) (ValueHandle, status.Code)
	SetNamed(env EnvHandle, obj ValueHandle, name string, v ValueHandle) status.Code
	GetNamed(env EnvHandle, obj ValueHandle, name string) (ValueHandle, status.Code)
	HasNamed(env EnvHandle, obj ValueHandle, name string) (bool, status.Code)

	// OwnNames returns the object's own enumerable string property names.
	OwnNames(env EnvHandle, obj ValueHandle) ([]string, status.Code)

	CreateArray(env EnvHandle, length int) (ValueHandle, status.Code)
	ArrayLength(env EnvHandle, arr ValueHandle) (uint32, status.Code)
	SetElement(env EnvHandle, arr ValueHandle, idx uint32, v ValueHandle) status.Code
	GetElement(env EnvHandle, arr ValueHandle, idx uint32) (ValueHandle, status.Code)
}

// Functions groups native function exposure and host function invocation.
type Functions interface {
	CreateFunction(env EnvHandle, name string, cb Callback) (ValueHandle, status.Code)

	// CallFunction invokes a host function value. A host-side throw returns
	// status.PendingException with the exception left pending.
	CallFunction(env EnvHandle, recv, fn ValueHandle, args []ValueHandle) (ValueHandle, status.Code)

	StrictEquals(env EnvHandle, a, b ValueHandle) (bool, status.Code)
}

// References groups the host-side reference table. Counts saturate at zero:
// decrementing a zero count returns status.GenericFailure.
type References interface {
	CreateReference(env EnvHandle, v ValueHandle, initial uint32, fin FinalizeCallback) (RefHandle, status.Code)
	RefIncr(env EnvHandle, r RefHandle) (uint32, status.Code)
	RefDecr(env EnvHandle, r RefHandle) (uint32, status.Code)

	// RefValue returns the referenced value, or handle 0 with status.OK once
	// the target has been reclaimed.
	RefValue(env EnvHandle, r RefHandle) (ValueHandle, status.Code)

	DeleteReference(env EnvHandle, r RefHandle) status.Code
}

// Dispatcher is the single cross-thread entry point.
type Dispatcher interface {
	// Dispatch enqueues fn onto the environment thread. Safe from any
	// goroutine. Enqueued callbacks run FIFO. Returns status.Closing once
	// the environment is shutting down.
	Dispatch(fn DispatchCallback) status.Code
}

// Works groups the background work queue.
type Works interface {
	// QueueWork schedules execute on a host-managed background worker and
	// complete on the environment thread afterwards. complete always runs,
	// with status.Cancelled when the work was cancelled before execution.
	QueueWork(execute func(), complete WorkCompleteCallback) (WorkHandle, status.Code)

	// CancelWork succeeds only while the work is still queued. Safe from any
	// goroutine. Returns status.GenericFailure once execution has begun.
	CancelWork(w WorkHandle) status.Code
}

// Lifecycle groups host feature discovery and teardown hooks.
type Lifecycle interface {
	Capabilities() Capability

	// AddCleanup registers fn to run once when the host environment is torn
	// down, in reverse registration order.
	AddCleanup(fn func()) status.Code
}

// Host is the complete boundary function table.
type Host interface {
	Environments
	Scopes
	Values
	Objects
	Functions
	References
	Dispatcher
	Works
	Lifecycle
}
