package gojahost

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"

	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/addon"
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
	workers  int
	registry *require.Registry
}

// WithWorkers sets the background worker pool size.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithRegistry shares an existing require registry instead of creating one,
// so addons sit next to the embedder's other native modules.
func WithRegistry(r *require.Registry) Option {
	return func(o *options) {
		if r != nil {
			o.registry = r
		}
	}
}

// Host implements abi.Host over a goja runtime driven by a goja_nodejs event
// loop. The loop goroutine is the environment thread; vm and all state below
// it are touched only from that goroutine.
type Host struct {
	loop *eventloop.EventLoop
	reg  *require.Registry

	vm      *goja.Runtime
	loopGID atomic.Int64

	mu      sync.Mutex
	closing bool
	closed  chan struct{}

	slots     []slot
	freeSlots []abi.ValueHandle
	scopes    []*scopeEntry
	nextScope uint64
	pending   goja.Value
	cleanups  []func()
	finals    []*finalizable
	refs      map[abi.RefHandle]*reference
	nextRef   uint64

	pool *workpool.Pool
}

// New starts a host, its event loop, and its worker pool.
func New(opts ...Option) *Host {
	o := options{workers: 2}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = require.NewRegistry()
	}
	h := &Host{
		reg:    o.registry,
		closed: make(chan struct{}),
		refs:   make(map[abi.RefHandle]*reference),
	}
	h.loop = eventloop.NewEventLoop(
		eventloop.WithRegistry(o.registry),
		eventloop.EnableConsole(true),
	)
	h.pool = workpool.New(h, o.workers)
	h.loop.Start()

	started := make(chan struct{})
	if !h.loop.RunOnLoop(func(vm *goja.Runtime) {
		h.vm = vm
		h.loopGID.Store(goroutineid.Current())
		close(started)
	}) {
		panic("gojahost: event loop rejected its first job")
	}
	<-started
	return h
}

// Registry returns the require registry scripts resolve modules from.
func (h *Host) Registry() *require.Registry {
	return h.reg
}

// Dispatch implements abi.Dispatcher. The mutex orders admitted jobs ahead
// of the teardown job Close enqueues.
func (h *Host) Dispatch(fn abi.DispatchCallback) status.Code {
	if fn == nil {
		return status.InvalidArg
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return status.Closing
	}
	if !h.loop.RunOnLoop(func(*goja.Runtime) { h.runJob(fn) }) {
		return status.Closing
	}
	return status.OK
}

func (h *Host) runJob(job abi.DispatchCallback) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("dispatched callback panicked", zap.Any("panic", r))
		}
	}()
	job(MainEnv)
}

// Close runs cleanup hooks and outstanding finalizers on the loop after the
// queue drains, then stops the loop. Dispatches submitted after Close fail
// with a closing status. Close is idempotent and must not be called from the
// environment thread.
func (h *Host) Close() {
	if h.onLoop() {
		panic("gojahost: Close called from the environment thread")
	}
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		<-h.closed
		return
	}
	h.closing = true
	done := make(chan struct{})
	ok := h.loop.RunOnLoop(func(*goja.Runtime) {
		h.teardown()
		close(done)
	})
	h.mu.Unlock()
	if ok {
		<-done
	}
	h.loop.Stop()
	close(h.closed)
}

// teardown runs on the loop as the last bridge job: everything admitted by
// Dispatch is already ahead of it.
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
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("finalizer panicked", zap.Any("panic", r))
		}
	}()
	if f.fin != nil {
		f.fin()
	}
}

// Capabilities implements abi.Lifecycle. The engine backs both optional
// features: big integers map to *big.Int values and external buffers alias
// caller memory through ArrayBuffer.
func (h *Host) Capabilities() abi.Capability {
	return abi.CapBigInt | abi.CapExternalBuffer
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
// wrapper. Calls from the loop itself run inline, so callbacks may nest it
// without deadlocking.
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

// Install exposes an addon registry as a require()-able native module. The
// exports object is defined on the loop the first time a script requires the
// module; definition failures surface as exceptions at the require site.
func (h *Host) Install(name string, r *addon.Registry) {
	h.reg.RegisterNativeModule(name, func(vm *goja.Runtime, module *goja.Object) {
		val, err := h.defineExports(r)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		_ = module.Set("exports", val)
	})
}

// defineExports runs the registry's Define inside a throwaway scope and
// extracts the raw engine value before the scope closes; the value stays
// alive as long as the script graph reaches it.
func (h *Host) defineExports(r *addon.Registry) (goja.Value, error) {
	if r == nil {
		return nil, status.InvalidInput(status.PhaseHost, "nil registry")
	}
	var out goja.Value
	err := env.Enter(h, MainEnv, func(e *env.Env) error {
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
			out = val
			return nil
		})
	})
	return out, err
}

// RunScript evaluates src on the loop and exports the completion value as a
// plain Go value. Script throws, including exceptions raised by native
// exports, come back as errors.
func (h *Host) RunScript(src string) (any, error) {
	if h.onLoop() {
		return h.runScript(src)
	}
	type result struct {
		out any
		err error
	}
	done := make(chan result, 1)
	code := h.Dispatch(func(abi.EnvHandle) {
		out, err := h.runScript(src)
		done <- result{out: out, err: err}
	})
	if code != status.OK {
		return nil, status.Wrap(status.PhaseHost, code, nil, "environment loop unavailable")
	}
	r := <-done
	return r.out, r.err
}

func (h *Host) runScript(src string) (any, error) {
	v, err := h.vm.RunString(src)
	if err != nil {
		var ex *goja.Exception
		if errors.As(err, &ex) {
			return nil, status.New(status.PhaseHost, status.GenericFailure).
				Cause(ex).
				Detail("uncaught exception: %s", describeValue(ex.Value())).
				Build()
		}
		return nil, status.Wrap(status.PhaseHost, status.GenericFailure, err, "script evaluation failed")
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	return v.Export(), nil
}

func (h *Host) onLoop() bool {
	return goroutineid.Current() == h.loopGID.Load()
}

// mustLoop fails fast when an environment-thread operation is invoked from
// anywhere else.
func (h *Host) mustLoop(op string) {
	if !h.onLoop() {
		panic("gojahost: " + op + " called off the environment thread")
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

// describeValue renders a value for diagnostics only.
func describeValue(v goja.Value) string {
	if v == nil {
		return "undefined"
	}
	if obj, ok := v.(*goja.Object); ok {
		if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
			if c := obj.Get("code"); c != nil && !goja.IsUndefined(c) {
				return c.String() + ": " + m.String()
			}
			return m.String()
		}
	}
	return v.String()
}
