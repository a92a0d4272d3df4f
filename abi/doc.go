// Package abi defines the raw boundary contract between native Go code and
// an embedding host runtime.
//
// The contract has three parts:
//
//   - Opaque handle types (EnvHandle, ValueHandle, RefHandle, ScopeHandle,
//     WorkHandle). Handles are host-issued tokens with no meaning outside
//     the issuing host; zero is reserved and always invalid.
//   - Host, the stable function table a host backend implements. Every entry
//     point returns a status.Code instead of failing loudly; nothing at this
//     layer tracks ownership, lifetime, or thread affinity. Those guarantees
//     are layered on top by the env, ref, convert, callqueue and asyncwork
//     packages, which is why this package should almost never be used
//     directly by addon code.
//   - Callback shapes the host invokes back into native code (Callback,
//     DispatchCallback, WorkCompleteCallback, FinalizeCallback).
//
// # Threading
//
// Unless stated otherwise every Host method must be called on the
// environment thread, passing an EnvHandle the host supplied for the current
// inbound call. Dispatch is the one cross-thread entry point; CancelWork is
// also safe from any goroutine. EnvHandles become invalid the instant the
// call they were issued for returns.
//
// # Capabilities
//
// Hosts are not required to support every value kind. Capabilities reports
// optional features; calling a gated entry point on a host that does not
// advertise it returns status.GenericFailure.
package abi
