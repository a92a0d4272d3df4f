package asyncwork

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/env"
	"github.com/wippyai/addon-bridge/status"
)

// State reports where a task is in its lifecycle.
type State int32

const (
	// StateQueued means the task waits for a background worker.
	StateQueued State = iota
	// StateExecuting means the work function is running off-thread.
	StateExecuting
	// StateCompletionPending means the work function returned and the
	// outcome waits for the environment thread.
	StateCompletionPending
	// StateDelivered means the completion function is running.
	StateDelivered
	// StateDone means the completion function returned.
	StateDone
	// StateCancelled means the task was cancelled before execution and
	// the completion function received a cancelled error.
	StateCancelled
)

var stateNames = map[State]string{
	StateQueued:            "queued",
	StateExecuting:         "executing",
	StateCompletionPending: "completion_pending",
	StateDelivered:         "delivered",
	StateDone:              "done",
	StateCancelled:         "cancelled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Option configures a task at spawn time.
type Option func(*options)

type options struct {
	name string
}

// WithName attaches a diagnostic name used in log entries.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// Task tracks one unit of background work and its completion delivery.
type Task[R any] struct {
	host abi.Host
	name string
	work abi.WorkHandle

	state atomic.Int32

	// result and err are written by the worker goroutine before the host
	// schedules completion, which orders them ahead of the reads in
	// deliver.
	result R
	err    error

	complete func(e *env.Env, result R, err error)
}

// Spawn schedules work on the host's background worker pool and complete
// on the environment thread afterwards. It must be called on the
// environment thread. complete always runs exactly once: with the work
// function's outcome, with a captured panic as the error, or with a
// cancelled error when Cancel won the race.
func Spawn[R any](e *env.Env, work func() (R, error), complete func(e *env.Env, result R, err error), opts ...Option) (*Task[R], error) {
	if work == nil {
		return nil, status.InvalidInput(status.PhaseAsync, "work function must not be nil")
	}
	if complete == nil {
		return nil, status.InvalidInput(status.PhaseAsync, "completion function must not be nil")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	t := &Task[R]{
		host:     e.Host(),
		name:     o.name,
		complete: complete,
	}
	t.state.Store(int32(StateQueued))

	w, code := t.host.QueueWork(func() { t.execute(work) }, t.deliver)
	if code != status.OK {
		return nil, status.Wrap(status.PhaseAsync, code, nil, "host rejected background work")
	}
	t.work = w
	return t, nil
}

// Name returns the task's diagnostic name.
func (t *Task[R]) Name() string { return t.name }

// State reports the task's lifecycle state.
func (t *Task[R]) State() State {
	return State(t.state.Load())
}

// Cancel withdraws the task before a worker picks it up. It is safe to
// call from any goroutine. Once execution has begun the task cannot be
// stopped and Cancel reports that the work already started.
func (t *Task[R]) Cancel() error {
	switch code := t.host.CancelWork(t.work); code {
	case status.OK:
		return nil
	case status.GenericFailure:
		return status.WorkStarted()
	default:
		return status.Wrap(status.PhaseAsync, code, nil, "cancel background work")
	}
}

// execute runs on a host worker goroutine.
func (t *Task[R]) execute(work func() (R, error)) {
	if !t.state.CompareAndSwap(int32(StateQueued), int32(StateExecuting)) {
		// A concurrent cancel won; the host delivers the cancelled
		// completion without us.
		return
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				Logger().Error("background work panicked",
					zap.String("task", t.name),
					zap.Any("panic", r))
				t.err = status.WorkPanicked(r)
			}
		}()
		t.result, t.err = work()
	}()
	t.state.Store(int32(StateCompletionPending))
}

// deliver runs on the environment thread.
func (t *Task[R]) deliver(raw abi.EnvHandle, code status.Code) {
	var (
		result R
		err    error
	)
	if code == status.Cancelled {
		t.state.Store(int32(StateCancelled))
		err = status.WorkCancelled()
	} else {
		t.state.Store(int32(StateDelivered))
		result, err = t.result, t.err
	}

	defer func() {
		if r := recover(); r != nil {
			Logger().Error("completion function panicked",
				zap.String("task", t.name),
				zap.Any("panic", r))
		}
		if State(t.state.Load()) == StateDelivered {
			t.state.Store(int32(StateDone))
		}
	}()
	enterErr := env.Enter(t.host, raw, func(e *env.Env) error {
		t.complete(e, result, err)
		return nil
	})
	if enterErr != nil {
		Logger().Error("completion delivery failed",
			zap.String("task", t.name),
			zap.Error(enterErr))
	}
}
