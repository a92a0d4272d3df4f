package wasmaddon

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	addonbridge "github.com/wippyai/addon-bridge"
	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/env"
	"github.com/wippyai/addon-bridge/status"
)

// Guest is one loaded wasm addon instance. Its exports object stays pinned
// in the host until Close.
type Guest struct {
	bridge *bridge
	host   abi.Host
	mod    api.Module
	mem    addonbridge.Memory
	alloc  addonbridge.Allocator

	// ctx from Load bounds every later call into the guest, including
	// trampolined function invocations.
	ctx context.Context

	regFn    api.Function
	invokeFn api.Function

	exports abi.RefHandle

	// in-flight invocation frames, environment thread only
	calls    map[uint64]*abi.CallInfo
	nextCall uint64
}

// Option configures Load.
type Option func(*loadConfig)

type loadConfig struct {
	wasi bool
}

// WithWASI makes wazero's wasi_snapshot_preview1 module available to the
// guest. Guests built by WASI toolchains import it even when they never
// touch the system interface.
func WithWASI() Option {
	return func(c *loadConfig) { c.wasi = true }
}

// Load instantiates a compiled wasm addon on rt and registers it against
// host. The first Load binds rt to host and instantiates the shared
// "addon_abi" module; later loads on the same runtime must use the same
// host. The guest's addon_register runs on the environment thread before
// Load returns, so Load must not be called from that thread.
func Load(ctx context.Context, rt wazero.Runtime, host abi.Host, code []byte, opts ...Option) (*Guest, error) {
	if host == nil {
		return nil, status.InvalidInput(status.PhaseLoad, "nil host")
	}
	if len(code) == 0 {
		return nil, status.InvalidInput(status.PhaseLoad, "empty module")
	}
	var cfg loadConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	b, err := bridgeFor(ctx, rt, host)
	if err != nil {
		return nil, err
	}
	if cfg.wasi {
		if err := b.ensureWASI(ctx, rt); err != nil {
			return nil, err
		}
	}

	// Anonymous instance names allow loading the same module bytes twice.
	mod, err := rt.InstantiateWithConfig(ctx, code, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, status.Load("instantiate guest module", err)
	}

	g := &Guest{
		bridge: b,
		host:   host,
		mod:    mod,
		ctx:    ctx,
		calls:  make(map[uint64]*abi.CallInfo),
	}
	mem := mod.Memory()
	if mem == nil {
		_ = mod.Close(ctx)
		return nil, status.Load("guest exports no memory", nil)
	}
	g.mem = &guestMemory{mem: mem}
	g.regFn = mod.ExportedFunction(guestRegister)
	if g.regFn == nil {
		_ = mod.Close(ctx)
		return nil, status.Load("guest exports no "+guestRegister, nil)
	}
	g.invokeFn = mod.ExportedFunction(guestInvoke)
	g.alloc = discoverAllocator(ctx, mod)

	// Imports resolve the calling module to its guest, so the guest must be
	// routable before addon_register runs.
	b.add(mod, g)
	if err := g.registerOnLoop(ctx); err != nil {
		b.remove(mod)
		_ = mod.Close(ctx)
		return nil, err
	}
	return g, nil
}

func (g *Guest) registerOnLoop(ctx context.Context) error {
	done := make(chan error, 1)
	code := g.host.Dispatch(func(raw abi.EnvHandle) {
		done <- g.runRegister(ctx, raw)
	})
	if err := status.TranslateAt(code, status.PhaseLoad, "dispatch guest registration"); err != nil {
		return err
	}
	return <-done
}

func (g *Guest) runRegister(ctx context.Context, raw abi.EnvHandle) error {
	return env.Enter(g.host, raw, func(e *env.Env) error {
		return e.InScope(func(s *env.Scope) error {
			objH, code := g.host.CreateObject(e.Raw())
			if err := status.TranslateAt(code, status.PhaseLoad, "create exports object"); err != nil {
				return err
			}
			refH, code := g.host.CreateReference(e.Raw(), objH, 1, nil)
			if err := status.TranslateAt(code, status.PhaseLoad, "pin exports object"); err != nil {
				return err
			}
			g.exports = refH

			fail := func(err error) error {
				_ = g.host.DeleteReference(e.Raw(), g.exports)
				g.exports = abi.None
				return err
			}

			ret, err := g.regFn.Call(ctx, uint64(e.Raw()), uint64(objH))
			if err != nil {
				return fail(status.Load(guestRegister+" trapped", err))
			}
			if rc := status.Code(int32(uint32(ret[0]))); rc != status.OK {
				return fail(status.New(status.PhaseLoad, rc).
					Detail("%s failed: %s", guestRegister, g.pendingDetail(e, rc)).
					Build())
			}
			if pending, _ := g.host.ExceptionPending(e.Raw()); pending {
				return fail(status.New(status.PhaseLoad, status.PendingException).
					Detail("%s threw: %s", guestRegister, g.pendingDetail(e, status.PendingException)).
					Build())
			}
			return nil
		})
	})
}

// pendingDetail drains a pending exception into text for the load error.
// Without one it falls back to the raw status name.
func (g *Guest) pendingDetail(e *env.Env, rc status.Code) string {
	raw := e.Raw()
	pending, _ := g.host.ExceptionPending(raw)
	if !pending {
		return rc.String()
	}
	exc, code := g.host.GetAndClearException(raw)
	if code != status.OK || exc == abi.None {
		return rc.String()
	}
	var parts []string
	for _, prop := range []string{"code", "message"} {
		h, code := g.host.GetNamed(raw, exc, prop)
		if code != status.OK || h == abi.None {
			continue
		}
		if kind, code := g.host.KindOf(raw, h); code != status.OK || kind != abi.KindString {
			continue
		}
		units, code := g.host.StringUTF16(raw, h)
		if code != status.OK {
			continue
		}
		parts = append(parts, string(utf16.Decode(units)))
	}
	if len(parts) == 0 {
		return rc.String()
	}
	return strings.Join(parts, ": ")
}

// trampoline adapts one registered guest function to the host callback
// shape. Arguments travel through an info token so reentrant invocations
// cannot see each other's frames.
func (g *Guest) trampoline(name string, fn uint32) abi.Callback {
	return func(envH abi.EnvHandle, info *abi.CallInfo) abi.ValueHandle {
		g.nextCall++
		token := g.nextCall
		g.calls[token] = info
		defer delete(g.calls, token)

		ret, err := g.invokeFn.Call(g.ctx, uint64(fn), uint64(envH), token)
		if err != nil {
			Logger().Error("guest function trapped",
				zap.String("function", name),
				zap.Uint32("fn", fn),
				zap.Error(err))
			_ = g.host.ThrowError(envH, status.GenericFailure.String(),
				fmt.Sprintf("guest function %s trapped: %v", name, err))
			return abi.None
		}
		return abi.ValueHandle(ret[0])
	}
}

// Exports resolves the guest's pinned exports object into s.
func (g *Guest) Exports(e *env.Env, s *env.Scope) (env.Value, error) {
	raw, code := g.host.RefValue(e.Raw(), g.exports)
	if err := status.TranslateAt(code, status.PhaseLoad, "resolve guest exports"); err != nil {
		return env.Value{}, err
	}
	return s.Adopt(raw)
}

// Memory exposes the guest's linear memory.
func (g *Guest) Memory() addonbridge.Memory {
	return g.mem
}

// Allocator exposes the guest's allocator. Alloc fails when the guest
// exports none.
func (g *Guest) Allocator() addonbridge.Allocator {
	return g.alloc
}

// Close unpins the exports object and closes the module. The host keeps
// running; host function values that outlive the guest trap when called.
// Close must not be called from the environment thread.
func (g *Guest) Close(ctx context.Context) error {
	done := make(chan struct{})
	code := g.host.Dispatch(func(raw abi.EnvHandle) {
		defer close(done)
		if g.exports != abi.None {
			_ = g.host.DeleteReference(raw, g.exports)
			g.exports = abi.None
		}
	})
	if code == status.OK {
		<-done
	}
	g.bridge.remove(g.mod)
	return g.mod.Close(ctx)
}

func (g *Guest) writeHandle(out uint32, h abi.ValueHandle) status.Code {
	if err := g.mem.WriteU64(out, uint64(h)); err != nil {
		return status.InvalidArg
	}
	return status.OK
}

func (g *Guest) readString(ptr, length uint32) (string, status.Code) {
	data, err := g.mem.Read(ptr, length)
	if err != nil {
		return "", status.InvalidArg
	}
	return string(data), status.OK
}

// stringRead copies a host string into guest memory as UTF-8. The range
// comes from the guest's own allocator and the guest owns it afterwards.
func (g *Guest) stringRead(stack []uint64) status.Code {
	units, code := g.host.StringUTF16(abi.EnvHandle(stack[0]), abi.ValueHandle(stack[1]))
	if code != status.OK {
		return code
	}
	outPtr, outLen := uint32(stack[2]), uint32(stack[3])
	data := []byte(string(utf16.Decode(units)))
	ptr := uint32(0)
	if len(data) > 0 {
		var err error
		ptr, err = g.alloc.Alloc(uint32(len(data)), 1)
		if err != nil {
			Logger().Warn("guest allocation failed",
				zap.Int("size", len(data)),
				zap.Error(err))
			return status.GenericFailure
		}
		if err := g.mem.Write(ptr, data); err != nil {
			return status.InvalidArg
		}
	}
	if err := g.mem.WriteU32(outPtr, ptr); err != nil {
		return status.InvalidArg
	}
	if err := g.mem.WriteU32(outLen, uint32(len(data))); err != nil {
		return status.InvalidArg
	}
	return status.OK
}
