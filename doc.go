// Package addonbridge is a boundary layer for native addons: Go code that
// exposes functions and values to an embedding engine through a narrow,
// status-coded function table. The same addon runs unchanged against an
// in-memory fake, a real JavaScript engine, or a wasm guest, because every
// engine-facing operation goes through the abi.Host interface.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	addon-bridge/        Root package with guest Memory and Allocator interfaces
//	├── status/          Status codes and structured boundary errors
//	├── abi/             Raw function table: handles, value kinds, the Host interface
//	├── env/             Environment entry, handle scopes, escape discipline
//	├── ref/             Persistent references that outlive scopes
//	├── convert/         Marshaling between Go values and engine values
//	├── callqueue/       Threadsafe call queues for foreign goroutines
//	├── asyncwork/       Background work with on-thread completion delivery
//	├── addon/           Export registries and module definition
//	├── fakehost/        Deterministic in-memory host for tests
//	├── gojahost/        JavaScript host over a goja event loop
//	└── wasmaddon/       wasm guest addons over a wazero runtime
//
// # Quick Start
//
// Define an addon and install it on a JavaScript host:
//
//	reg := addon.NewRegistry()
//	reg.RegisterFunc("add", func(e *env.Env, a, b float64) (float64, error) {
//	    return a + b, nil
//	})
//	reg.RegisterValue("version", 3)
//
//	host := gojahost.New()
//	defer host.Close()
//
//	host.Install("calc", reg)
//	out, err := host.RunScript(`const calc = require('calc'); calc.add(2, 3)`)
//
// # Thread Safety
//
// Every environment is single-threaded: handles, scopes, and references may
// only be touched from the environment thread that produced them, and hosts
// enforce this. The two sanctioned ways in from other goroutines are
// callqueue (borrowed threads calling back into the environment) and
// asyncwork (background execution with completion delivered on the
// environment thread).
//
// # Memory Model
//
// Handles are scope-bound and die with their scope; references made through
// ref keep a value alive across scopes until released. For wasm guests,
// linear memory only grows, never shrinks, so hosts copy guest bytes they
// intend to keep.
package addonbridge
