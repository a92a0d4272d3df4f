package fakehost

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/addon"
	"github.com/wippyai/addon-bridge/convert"
	"github.com/wippyai/addon-bridge/env"
	"github.com/wippyai/addon-bridge/internal/goroutineid"
	"github.com/wippyai/addon-bridge/internal/workpool"
	"github.com/wippyai/addon-bridge/status"
)

// MainEnv is the handle of the host's single environment.
const MainEnv abi.EnvHandle = 1

// Option configures a Host.
type Option func(*options)

type options struct {
	workers int
	caps    abi.Capability
}

// WithWorkers sets the background worker pool size.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithCapabilities overrides the advertised capability set. The default
// host advertises everything; tests disable capabilities to exercise
// fallback paths.
func WithCapabilities(caps abi.Capability) Option {
	return func(o *options) { o.caps = caps }
}

// Host implements abi.Host against in-process state. One loop goroutine
// acts as the environment thread; all value state below it is touched
// only from that goroutine.
type Host struct {
	caps abi.Capability

	mu      sync.Mutex
	cond    *sync.Cond
	jobs    []abi.DispatchCallback
	closing bool

	loopGID  atomic.Int64
	loopDone chan struct{}

	slots     []slot
	freeSlots []abi.ValueHandle
	scopes    []*scopeEntry
	nextScope uint64
	pending   *value
	undefVal  *value
	nullVal   *value
	globalVal *value
	modules   []*value
	cleanups  []func()
	finals    []*finalizable
	refs      map[abi.RefHandle]*reference
	nextRef   uint64

	pool *workpool.Pool

	stats counters
}

// New starts a host and its environment loop.
func New(opts ...Option) *Host {
	o := options{
		workers: 2,
		caps:    abi.CapBigInt | abi.CapExternalBuffer,
	}
	for _, opt := range opts {
		opt(&o)
	}
	h := &Host{
		caps:      o.caps,
		loopDone:  make(chan struct{}),
		undefVal:  &value{kind: abi.KindUndefined},
		nullVal:   &value{kind: abi.KindNull},
		globalVal: objectValue(),
		refs:      make(map[abi.RefHandle]*reference),
	}
	h.cond = sync.NewCond(&h.mu)
	h.pool = workpool.New(h, o.workers)

	started := make(chan struct{})
	go h.loop(started)
	<-started
	return h
}

func (h *Host) loop(started chan struct{}) {
	h.loopGID.Store(goroutineid.Current())
	close(started)
	defer close(h.loopDone)
	for {
		h.mu.Lock()
		for len(h.jobs) == 0 && !h.closing {
			h.cond.Wait()
		}
		if len(h.jobs) == 0 {
			h.mu.Unlock()
			return
		}
		job := h.jobs[0]
		h.jobs = h.jobs[1:]
		h.mu.Unlock()
		h.runJob(job)
	}
}

func (h *Host) runJob(job abi.DispatchCallback) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("dispatched callback panicked", zap.Any("panic", r))
		}
	}()
	job(MainEnv)
}

// Dispatch implements abi.Dispatcher.
func (h *Host) Dispatch(fn abi.DispatchCallback) status.Code {
	if fn == nil {
		return status.InvalidArg
	}
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		return status.Closing
	}
	h.jobs = append(h.jobs, fn)
	h.stats.dispatches.Add(1)
	h.cond.Signal()
	h.mu.Unlock()
	return status.OK
}

// Close drains the dispatch queue, runs cleanup hooks and outstanding
// finalizers on the loop, and stops it. Dispatches submitted after Close
// fail with a closing status. Close is idempotent and must not be called
// from the environment thread.
func (h *Host) Close() {
	if h.onLoop() {
		panic("fakehost: Close called from the environment thread")
	}
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		<-h.loopDone
		return
	}
	h.jobs = append(h.jobs, func(abi.EnvHandle) { h.teardown() })
	h.closing = true
	h.cond.Broadcast()
	h.mu.Unlock()
	<-h.loopDone
}

// teardown runs on the loop as its final job: queued dispatches have
// already drained because Close appends it last.
func (h *Host) teardown() {
	for i := len(h.cleanups) - 1; i >= 0; i-- {
		h.runHook(h.cleanups[i])
	}
	h.cleanups = nil

	for _, c := range h.pool.Shutdown() {
		c.Run(MainEnv)
	}

	for _, f := range h.finals {
		h.finalize(f)
	}
	h.finals = nil
	h.pending = nil
}

func (h *Host) runHook(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("cleanup hook panicked", zap.Any("panic", r))
		}
	}()
	fn()
}

func (h *Host) finalize(f *finalizable) {
	if f.done {
		return
	}
	f.done = true
	h.stats.finalizersRun.Add(1)
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("finalizer panicked", zap.Any("panic", r))
		}
	}()
	if f.fin != nil {
		f.fin()
	}
}

// GC reclaims values unreachable from open scopes, pinned references,
// loaded modules, the pending exception, and the global object, running
// their finalizers on the loop. Weak references to reclaimed values read
// as empty afterwards. Safe to call from any goroutine; blocks until the
// pass finishes.
func (h *Host) GC() {
	if h.onLoop() {
		h.collect()
		return
	}
	done := make(chan struct{})
	code := h.Dispatch(func(abi.EnvHandle) {
		h.collect()
		close(done)
	})
	if code != status.OK {
		return
	}
	<-done
}

func (h *Host) collect() {
	marked := make(map[*value]bool)
	var mark func(v *value)
	mark = func(v *value) {
		if v == nil || marked[v] {
			return
		}
		marked[v] = true
		if v.obj != nil {
			for _, k := range v.obj.keys {
				mark(v.obj.props[k])
			}
			for _, e := range v.obj.elems {
				mark(e)
			}
		}
	}

	for _, s := range h.slots {
		if s.valid {
			mark(s.val)
		}
	}
	for _, r := range h.refs {
		if r.count > 0 {
			mark(r.val)
		}
	}
	for _, m := range h.modules {
		mark(m)
	}
	mark(h.globalVal)
	mark(h.pending)

	kept := h.finals[:0]
	for _, f := range h.finals {
		if f.done {
			continue
		}
		if marked[f.val] {
			kept = append(kept, f)
			continue
		}
		h.finalize(f)
	}
	h.finals = kept

	for _, r := range h.refs {
		if r.count == 0 && r.val != nil && !marked[r.val] {
			r.val = nil
		}
	}
}

// Capabilities implements abi.Lifecycle.
func (h *Host) Capabilities() abi.Capability {
	return h.caps
}

// AddCleanup implements abi.Lifecycle.
func (h *Host) AddCleanup(fn func()) status.Code {
	h.mustLoop("AddCleanup")
	if fn == nil {
		return status.InvalidArg
	}
	h.cleanups = append(h.cleanups, fn)
	return status.OK
}

// WithEnv runs fn on the environment thread inside a live environment
// wrapper. Calls from the loop itself run inline, so callbacks may nest
// it without deadlocking.
func (h *Host) WithEnv(fn func(*env.Env) error) error {
	if h.onLoop() {
		return env.Enter(h, MainEnv, fn)
	}
	done := make(chan error, 1)
	code := h.Dispatch(func(raw abi.EnvHandle) {
		done <- env.Enter(h, raw, fn)
	})
	if code != status.OK {
		return status.Wrap(status.PhaseHost, code, nil, "environment loop unavailable")
	}
	return <-done
}

// LoadAddon defines the registry's exports in the host environment and
// keeps the exports object alive for CallExport.
func (h *Host) LoadAddon(r *addon.Registry) error {
	if r == nil {
		return status.InvalidInput(status.PhaseHost, "nil registry")
	}
	return h.WithEnv(func(e *env.Env) error {
		return e.InScope(func(s *env.Scope) error {
			exports, err := r.Define(e, s)
			if err != nil {
				return err
			}
			raw, err := exports.Use()
			if err != nil {
				return err
			}
			val, code := h.lookup(raw)
			if err := status.TranslateAt(code, status.PhaseHost, "resolve exports object"); err != nil {
				return err
			}
			h.modules = append(h.modules, val)
			return nil
		})
	})
}

// CallExport invokes a loaded export by name with Go arguments and decodes
// the result into plain Go values. A host exception becomes an error
// carrying the exception's message.
func (h *Host) CallExport(name string, args ...any) (any, error) {
	var out any
	err := h.WithEnv(func(e *env.Env) error {
		return e.InScope(func(s *env.Scope) error {
			target := h.findExport(name)
			if target == nil {
				return status.InvalidInput(status.PhaseHost, "unknown export "+name)
			}
			raw, code := h.adoptVal(target)
			if err := status.TranslateAt(code, status.PhaseHost, "adopt export"); err != nil {
				return err
			}
			fnV, err := s.Adopt(raw)
			if err != nil {
				return err
			}
			hargs := make([]env.Value, len(args))
			for i, a := range args {
				v, err := convert.ToValue(e, s, a)
				if err != nil {
					return err
				}
				hargs[i] = v
			}
			ret, err := e.CallFunction(s, env.Value{}, fnV, hargs...)
			if err != nil {
				if status.CodeOf(err) == status.PendingException {
					return h.takePendingError()
				}
				return err
			}
			return convert.FromValue(e, ret, &out)
		})
	})
	return out, err
}

func (h *Host) findExport(name string) *value {
	for i := len(h.modules) - 1; i >= 0; i-- {
		if obj := h.modules[i].obj; obj != nil {
			if v, ok := obj.props[name]; ok {
				return v
			}
		}
	}
	return nil
}

// takePendingError consumes the pending exception and reports it as an
// error to the Go caller.
func (h *Host) takePendingError() error {
	ex := h.pending
	h.pending = nil
	if ex == nil {
		return status.Wrap(status.PhaseHost, status.GenericFailure, nil, "pending exception vanished")
	}
	return status.New(status.PhaseHost, status.GenericFailure).
		Detail("uncaught exception: %s", describeValue(ex)).
		Build()
}

// Stats returns a snapshot of the host's activity counters.
func (h *Host) Stats() Stats {
	return h.stats.snapshot()
}

func (h *Host) onLoop() bool {
	return goroutineid.Current() == h.loopGID.Load()
}

// mustLoop fails fast when an environment-thread operation is invoked
// from anywhere else.
func (h *Host) mustLoop(op string) {
	if !h.onLoop() {
		panic("fakehost: " + op + " called off the environment thread")
	}
}

// check gates operations that stay usable while an exception is pending.
func (h *Host) check(envH abi.EnvHandle, op string) status.Code {
	h.mustLoop(op)
	if envH != MainEnv {
		return status.InvalidArg
	}
	return status.OK
}

// barrier additionally rejects work while an exception is pending.
func (h *Host) barrier(envH abi.EnvHandle, op string) status.Code {
	if code := h.check(envH, op); code != status.OK {
		return code
	}
	if h.pending != nil {
		return status.PendingException
	}
	return status.OK
}

// Stats is a snapshot of host activity counters.
type Stats struct {
	ValuesCreated    uint64
	ScopesOpened     uint64
	ScopesClosed     uint64
	RefsCreated      uint64
	FinalizersRun    uint64
	Dispatches       uint64
	WorksQueued      uint64
	WorksCancelled   uint64
	CallbacksInvoked uint64
}

type counters struct {
	valuesCreated    atomic.Uint64
	scopesOpened     atomic.Uint64
	scopesClosed     atomic.Uint64
	refsCreated      atomic.Uint64
	finalizersRun    atomic.Uint64
	dispatches       atomic.Uint64
	worksQueued      atomic.Uint64
	worksCancelled   atomic.Uint64
	callbacksInvoked atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		ValuesCreated:    c.valuesCreated.Load(),
		ScopesOpened:     c.scopesOpened.Load(),
		ScopesClosed:     c.scopesClosed.Load(),
		RefsCreated:      c.refsCreated.Load(),
		FinalizersRun:    c.finalizersRun.Load(),
		Dispatches:       c.dispatches.Load(),
		WorksQueued:      c.worksQueued.Load(),
		WorksCancelled:   c.worksCancelled.Load(),
		CallbacksInvoked: c.callbacksInvoked.Load(),
	}
}
