package callqueue

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/env"
	"github.com/wippyai/addon-bridge/status"
)

// State reports where a queue is in its lifecycle.
type State int32

const (
	// StateOpen accepts new payloads.
	StateOpen State = iota
	// StateClosing rejects new payloads while previously accepted ones drain.
	StateClosing
	// StateClosed means the finalizer has run and the queue is inert.
	StateClosed
)

var stateNames = map[State]string{
	StateOpen:    "open",
	StateClosing: "closing",
	StateClosed:  "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Callback receives queued payloads on the environment thread.
type Callback[T any] func(e *env.Env, payload T)

// Option configures a queue at creation time.
type Option func(*options)

type options struct {
	name      string
	capacity  int
	finalizer func()
}

// WithName attaches a diagnostic name used in errors and log entries.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithCapacity bounds the number of payloads that may wait for delivery.
// Zero, the default, means unbounded.
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// WithFinalizer registers a function to run on the environment thread
// once the queue has fully closed.
func WithFinalizer(fn func()) Option {
	return func(o *options) { o.finalizer = fn }
}

// Queue delivers payloads of type T from any goroutine to a callback on
// the environment thread. The zero value is not usable; construct queues
// with New.
type Queue[T any] struct {
	host abi.Host
	cb   Callback[T]
	name string
	cap  int
	fin  func()

	mu         sync.Mutex
	notFull    *sync.Cond
	items      []T
	holds      int
	state      State
	finalizing bool
	dropped    uint64
}

// New creates a queue bound to cb. It must be called on the environment
// thread. The returned queue carries one acquisition on the caller's
// behalf; drop it with Release when no more payloads will be submitted.
func New[T any](e *env.Env, cb Callback[T], opts ...Option) (*Queue[T], error) {
	if cb == nil {
		return nil, status.InvalidInput(status.PhaseQueue, "queue callback must not be nil")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.capacity < 0 {
		return nil, status.InvalidInput(status.PhaseQueue, "queue capacity must not be negative")
	}
	q := &Queue[T]{
		host:  e.Host(),
		cb:    cb,
		name:  o.name,
		cap:   o.capacity,
		fin:   o.finalizer,
		holds: 1,
	}
	q.notFull = sync.NewCond(&q.mu)
	return q, nil
}

// Name returns the queue's diagnostic name.
func (q *Queue[T]) Name() string { return q.name }

// State reports the queue's lifecycle state.
func (q *Queue[T]) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Pending reports how many accepted payloads await delivery.
func (q *Queue[T]) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped reports how many payloads Abort discarded.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Call submits payload for delivery on the environment thread. It is
// safe to call from any goroutine. When the queue is bounded and full,
// a blocking call waits for a slot and a non-blocking call fails with a
// queue-full error. Once the queue leaves the open state every call
// fails with a closing error; payloads accepted earlier still drain in
// submission order unless Abort discards them.
func (q *Queue[T]) Call(payload T, blocking bool) error {
	q.mu.Lock()
	for {
		if q.state != StateOpen {
			q.mu.Unlock()
			return status.QueueClosed(q.name)
		}
		if q.cap == 0 || len(q.items) < q.cap {
			break
		}
		if !blocking {
			q.mu.Unlock()
			return status.QueueSaturated(q.name)
		}
		q.notFull.Wait()
	}
	q.items = append(q.items, payload)
	code := q.host.Dispatch(q.deliverOne)
	if code != status.OK {
		q.items = q.items[:len(q.items)-1]
		q.mu.Unlock()
		return status.Wrap(status.PhaseQueue, code, nil, "environment loop rejected dispatch")
	}
	q.mu.Unlock()
	return nil
}

// deliverOne pops and delivers the oldest pending payload. One dispatch
// job is posted per accepted payload, so pairing the head pop with the
// job keeps delivery in submission order no matter which call posted it.
func (q *Queue[T]) deliverOne(raw abi.EnvHandle) {
	q.mu.Lock()
	if len(q.items) == 0 {
		// Abort already discarded this job's payload.
		q.mu.Unlock()
		return
	}
	payload := q.items[0]
	q.items = q.items[1:]
	q.notFull.Signal()
	q.mu.Unlock()

	q.invoke(raw, payload)
	q.maybeFinalize()
}

func (q *Queue[T]) invoke(raw abi.EnvHandle, payload T) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("call queue callback panicked",
				zap.String("queue", q.name),
				zap.Any("panic", r))
		}
	}()
	err := env.Enter(q.host, raw, func(e *env.Env) error {
		q.cb(e, payload)
		return nil
	})
	if err != nil {
		Logger().Error("call queue delivery failed",
			zap.String("queue", q.name),
			zap.Error(err))
	}
}

// Guard represents one acquisition of a queue by a producer.
type Guard struct {
	drop func()
	done atomic.Bool
}

// Release drops the acquisition. It is idempotent; releasing the last
// acquisition moves the queue to the closing state.
func (g *Guard) Release() {
	if g.done.Swap(true) {
		return
	}
	g.drop()
}

// Acquire registers another producer with the queue, keeping it open
// until every guard is released. It may be called from any goroutine.
func (q *Queue[T]) Acquire() (*Guard, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != StateOpen {
		return nil, status.QueueClosed(q.name)
	}
	q.holds++
	return &Guard{drop: q.guardDrop}, nil
}

// Release drops the acquisition New took on the creator's behalf. Once
// every acquisition is gone the queue stops accepting payloads, drains
// what was accepted, runs the finalizer, and closes.
func (q *Queue[T]) Release() error {
	q.mu.Lock()
	if q.state == StateClosed || q.holds == 0 {
		q.mu.Unlock()
		return status.QueueClosed(q.name)
	}
	q.dropHoldLocked()
	q.mu.Unlock()
	q.maybeFinalize()
	return nil
}

func (q *Queue[T]) guardDrop() {
	q.mu.Lock()
	if q.holds > 0 {
		q.dropHoldLocked()
	}
	q.mu.Unlock()
	q.maybeFinalize()
}

func (q *Queue[T]) dropHoldLocked() {
	q.holds--
	if q.holds == 0 && q.state == StateOpen {
		q.state = StateClosing
		q.notFull.Broadcast()
	}
}

// Abort force-closes the queue. Payloads not yet delivered are dropped
// and counted, blocked callers wake with a closing error, and the
// finalizer still runs on the environment thread.
func (q *Queue[T]) Abort() error {
	q.mu.Lock()
	if q.state == StateClosed {
		q.mu.Unlock()
		return status.QueueClosed(q.name)
	}
	dropped := len(q.items)
	q.items = nil
	q.dropped += uint64(dropped)
	q.holds = 0
	if q.state == StateOpen {
		q.state = StateClosing
	}
	q.notFull.Broadcast()
	q.mu.Unlock()
	if dropped > 0 {
		Logger().Warn("call queue aborted with undelivered payloads",
			zap.String("queue", q.name),
			zap.Int("dropped", dropped))
	}
	q.maybeFinalize()
	return nil
}

// maybeFinalize schedules the closing queue's finalizer exactly once,
// after the last pending payload is gone.
func (q *Queue[T]) maybeFinalize() {
	q.mu.Lock()
	if q.state != StateClosing || len(q.items) != 0 || q.finalizing {
		q.mu.Unlock()
		return
	}
	q.finalizing = true
	q.mu.Unlock()

	code := q.host.Dispatch(q.finalize)
	if code != status.OK {
		Logger().Warn("environment loop unavailable, running queue finalizer inline",
			zap.String("queue", q.name))
		q.finalize(abi.None)
	}
}

func (q *Queue[T]) finalize(abi.EnvHandle) {
	if q.fin != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					Logger().Error("call queue finalizer panicked",
						zap.String("queue", q.name),
						zap.Any("panic", r))
				}
			}()
			q.fin()
		}()
	}
	q.mu.Lock()
	q.state = StateClosed
	q.mu.Unlock()
}
