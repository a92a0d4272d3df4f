package wasmaddon

import (
	"context"
	"math"
	"sync"
	"unicode/utf16"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/status"
)

const (
	hostModule    = "addon_abi"
	guestRegister = "addon_register"
	guestInvoke   = "addon_invoke"
	guestAlloc    = "addon_alloc"
	guestFree     = "addon_free"
	cabiRealloc   = "cabi_realloc"
	cabiFree      = "cabi_free"
)

// Integers beyond this range lose precision as host numbers and cross as
// BigInts instead.
const (
	maxSafeInteger = 1<<53 - 1
	minSafeInteger = -(1<<53 - 1)
)

// bridge ties one wazero runtime to one host. It owns the "addon_abi" host
// module and routes import calls to the guest that made them.
type bridge struct {
	host abi.Host

	initOnce sync.Once
	initErr  error

	wasiOnce sync.Once
	wasiErr  error

	mu     sync.Mutex
	guests map[api.Module]*Guest
}

// bridges maps each runtime to its bridge. Guests on the same runtime share
// one host module instance, so a runtime cannot serve two hosts.
var bridges sync.Map // wazero.Runtime -> *bridge

func bridgeFor(ctx context.Context, rt wazero.Runtime, host abi.Host) (*bridge, error) {
	v, _ := bridges.LoadOrStore(rt, &bridge{
		host:   host,
		guests: make(map[api.Module]*Guest),
	})
	b := v.(*bridge)
	if b.host != host {
		return nil, status.InvalidInput(status.PhaseLoad, "runtime already serves a different host")
	}
	b.initOnce.Do(func() { b.initErr = b.instantiate(ctx, rt) })
	if b.initErr != nil {
		return nil, b.initErr
	}
	return b, nil
}

func (b *bridge) instantiate(ctx context.Context, rt wazero.Runtime) error {
	if rt.Module(hostModule) != nil {
		return status.Load("module name "+hostModule+" already taken on this runtime", nil)
	}
	builder := rt.NewHostModuleBuilder(hostModule)
	results := []api.ValueType{api.ValueTypeI32}
	for _, f := range b.imports() {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(b.bind(f.fn), f.params, results).
			Export(f.name)
	}
	if _, err := builder.Instantiate(ctx); err != nil {
		return status.Load("instantiate "+hostModule, err)
	}
	return nil
}

// ensureWASI instantiates wasi_snapshot_preview1 once per runtime, skipping
// runtimes where the embedder already provides it.
func (b *bridge) ensureWASI(ctx context.Context, rt wazero.Runtime) error {
	b.wasiOnce.Do(func() {
		if rt.Module(wasi_snapshot_preview1.ModuleName) != nil {
			return
		}
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
			b.wasiErr = status.Load("instantiate "+wasi_snapshot_preview1.ModuleName, err)
		}
	})
	return b.wasiErr
}

func (b *bridge) add(mod api.Module, g *Guest) {
	b.mu.Lock()
	b.guests[mod] = g
	b.mu.Unlock()
}

func (b *bridge) remove(mod api.Module) {
	b.mu.Lock()
	delete(b.guests, mod)
	b.mu.Unlock()
}

func (b *bridge) guestFor(mod api.Module) *Guest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.guests[mod]
}

// hostImport is one entry of the guest-facing function table. Every import
// returns a single i32 status, so only the parameter types vary.
type hostImport struct {
	name   string
	params []api.ValueType
	fn     func(g *Guest, stack []uint64) status.Code
}

// bind resolves the calling module to its guest and folds the handler's
// status into the wire result.
func (b *bridge) bind(fn func(g *Guest, stack []uint64) status.Code) api.GoModuleFunc {
	return api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
		g := b.guestFor(mod)
		if g == nil {
			stack[0] = uint64(uint32(status.InvalidArg))
			return
		}
		stack[0] = uint64(uint32(fn(g, stack)))
	})
}

func (b *bridge) imports() []hostImport {
	i32 := api.ValueTypeI32
	i64 := api.ValueTypeI64
	f64 := api.ValueTypeF64

	return []hostImport{
		{
			name:   "create_number",
			params: []api.ValueType{i64, f64, i32},
			fn: func(g *Guest, stack []uint64) status.Code {
				h, code := g.host.CreateNumber(abi.EnvHandle(stack[0]), math.Float64frombits(stack[1]))
				if code != status.OK {
					return code
				}
				return g.writeHandle(uint32(stack[2]), h)
			},
		},
		{
			name:   "create_int64",
			params: []api.ValueType{i64, i64, i32},
			fn: func(g *Guest, stack []uint64) status.Code {
				env := abi.EnvHandle(stack[0])
				n := int64(stack[1])
				var h abi.ValueHandle
				var code status.Code
				switch {
				case n >= minSafeInteger && n <= maxSafeInteger:
					h, code = g.host.CreateNumber(env, float64(n))
				case g.host.Capabilities().Has(abi.CapBigInt):
					h, code = g.host.CreateBigIntInt64(env, n)
				default:
					return status.GenericFailure
				}
				if code != status.OK {
					return code
				}
				return g.writeHandle(uint32(stack[2]), h)
			},
		},
		{
			name:   "create_string",
			params: []api.ValueType{i64, i32, i32, i32},
			fn: func(g *Guest, stack []uint64) status.Code {
				data, err := g.mem.Read(uint32(stack[1]), uint32(stack[2]))
				if err != nil {
					return status.InvalidArg
				}
				h, code := g.host.CreateStringUTF16(abi.EnvHandle(stack[0]), utf16.Encode([]rune(string(data))))
				if code != status.OK {
					return code
				}
				return g.writeHandle(uint32(stack[3]), h)
			},
		},
		{
			name:   "create_buffer",
			params: []api.ValueType{i64, i32, i32, i32},
			fn: func(g *Guest, stack []uint64) status.Code {
				// The copy decouples the host buffer from guest memory,
				// which moves when it grows.
				data, err := g.mem.Read(uint32(stack[1]), uint32(stack[2]))
				if err != nil {
					return status.InvalidArg
				}
				h, code := g.host.CreateBufferCopy(abi.EnvHandle(stack[0]), data)
				if code != status.OK {
					return code
				}
				return g.writeHandle(uint32(stack[3]), h)
			},
		},
		{
			name:   "create_object",
			params: []api.ValueType{i64, i32},
			fn: func(g *Guest, stack []uint64) status.Code {
				h, code := g.host.CreateObject(abi.EnvHandle(stack[0]))
				if code != status.OK {
					return code
				}
				return g.writeHandle(uint32(stack[1]), h)
			},
		},
		{
			name:   "number_value",
			params: []api.ValueType{i64, i64, i32},
			fn: func(g *Guest, stack []uint64) status.Code {
				f, code := g.host.NumberValue(abi.EnvHandle(stack[0]), abi.ValueHandle(stack[1]))
				if code != status.OK {
					return code
				}
				if err := g.mem.WriteU64(uint32(stack[2]), math.Float64bits(f)); err != nil {
					return status.InvalidArg
				}
				return status.OK
			},
		},
		{
			name:   "string_read",
			params: []api.ValueType{i64, i64, i32, i32},
			fn:     (*Guest).stringRead,
		},
		{
			name:   "get_named",
			params: []api.ValueType{i64, i64, i32, i32, i32},
			fn: func(g *Guest, stack []uint64) status.Code {
				name, code := g.readString(uint32(stack[2]), uint32(stack[3]))
				if code != status.OK {
					return code
				}
				h, code := g.host.GetNamed(abi.EnvHandle(stack[0]), abi.ValueHandle(stack[1]), name)
				if code != status.OK {
					return code
				}
				return g.writeHandle(uint32(stack[4]), h)
			},
		},
		{
			name:   "set_named",
			params: []api.ValueType{i64, i64, i32, i32, i64},
			fn: func(g *Guest, stack []uint64) status.Code {
				name, code := g.readString(uint32(stack[2]), uint32(stack[3]))
				if code != status.OK {
					return code
				}
				return g.host.SetNamed(abi.EnvHandle(stack[0]), abi.ValueHandle(stack[1]), name, abi.ValueHandle(stack[4]))
			},
		},
		{
			name:   "throw_error",
			params: []api.ValueType{i64, i32, i32, i32, i32},
			fn: func(g *Guest, stack []uint64) status.Code {
				errCode, code := g.readString(uint32(stack[1]), uint32(stack[2]))
				if code != status.OK {
					return code
				}
				msg, code := g.readString(uint32(stack[3]), uint32(stack[4]))
				if code != status.OK {
					return code
				}
				return g.host.ThrowError(abi.EnvHandle(stack[0]), errCode, msg)
			},
		},
		{
			name:   "register_function",
			params: []api.ValueType{i64, i32, i32, i32, i32},
			fn: func(g *Guest, stack []uint64) status.Code {
				name, code := g.readString(uint32(stack[1]), uint32(stack[2]))
				if code != status.OK {
					return code
				}
				if g.invokeFn == nil {
					return status.GenericFailure
				}
				h, code := g.host.CreateFunction(abi.EnvHandle(stack[0]), name, g.trampoline(name, uint32(stack[3])))
				if code != status.OK {
					return code
				}
				return g.writeHandle(uint32(stack[4]), h)
			},
		},
		{
			name:   "call_argc",
			params: []api.ValueType{i64, i64, i32},
			fn: func(g *Guest, stack []uint64) status.Code {
				info := g.calls[stack[1]]
				if info == nil {
					return status.InvalidArg
				}
				if err := g.mem.WriteU32(uint32(stack[2]), uint32(len(info.Args))); err != nil {
					return status.InvalidArg
				}
				return status.OK
			},
		},
		{
			name:   "call_arg",
			params: []api.ValueType{i64, i64, i32, i32},
			fn: func(g *Guest, stack []uint64) status.Code {
				info := g.calls[stack[1]]
				if info == nil {
					return status.InvalidArg
				}
				var h abi.ValueHandle
				if idx := int(uint32(stack[2])); idx < len(info.Args) {
					h = info.Args[idx]
				} else {
					var code status.Code
					h, code = g.host.Undefined(abi.EnvHandle(stack[0]))
					if code != status.OK {
						return code
					}
				}
				return g.writeHandle(uint32(stack[3]), h)
			},
		},
	}
}
