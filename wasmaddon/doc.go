// Package wasmaddon runs native addons compiled to WebAssembly. A guest
// module imports a small status-coded function table under the "addon_abi"
// module name and drives the same boundary semantics Go addons reach through
// the abi package: environment and value handles cross the wire as i64,
// every import returns an i32 status code, and results land at out pointers
// in guest memory.
//
// # Guest contract
//
// A guest exports its linear memory as "memory" plus a registration entry
// point:
//
//	addon_register(env i64, exports i64) -> i32
//
// Load instantiates the module on a shared wazero runtime, pins a fresh
// exports object, and calls addon_register on the environment thread. The
// guest populates the exports object through set_named; a non-zero return or
// a pending exception fails the load. Guests that expose functions also
// export the invocation trampoline
//
//	addon_invoke(fn i32, env i64, info i64) -> i64
//
// where fn is the guest-chosen id passed to register_function and info is a
// token for call_argc and call_arg, valid only for that invocation. The
// returned i64 is the result handle, zero for undefined. Guests that need
// string read-back also export an allocator, either component-model
// cabi_realloc or the simple pair
//
//	addon_alloc(size i32) -> i32
//	addon_free(ptr i32, size i32)
//
// # Import surface
//
// All imports live under "addon_abi". Strings cross as UTF-8 pointer/length
// pairs and invalid bytes decode to U+FFFD. Out parameters are little-endian:
// handles 8 bytes, numbers 8 bytes of IEEE 754 bits, counts and pointers 4.
//
//	create_number(env, value f64, out) -> status
//	create_int64(env, value i64, out) -> status     larger than 2^53-1 becomes a BigInt
//	create_string(env, ptr, len, out) -> status
//	create_buffer(env, ptr, len, out) -> status     copies out of guest memory
//	create_object(env, out) -> status
//	number_value(env, value, out) -> status
//	string_read(env, value, outPtr, outLen) -> status
//	get_named(env, obj, namePtr, nameLen, out) -> status
//	set_named(env, obj, namePtr, nameLen, value) -> status
//	throw_error(env, codePtr, codeLen, msgPtr, msgLen) -> status
//	register_function(env, namePtr, nameLen, fn, out) -> status
//	call_argc(env, info, out) -> status
//	call_arg(env, info, index, out) -> status       out of range yields undefined
//
// string_read allocates the byte range through the guest's exported
// allocator and the guest owns the result. A guest without an allocator gets
// a generic failure instead.
//
// One runtime serves one host: the first Load binds them, and every module
// loaded on that runtime shares the "addon_abi" instance. Guest exports are
// driven only from the environment thread, so guests need no locking of
// their own.
//
// Guests built by WASI toolchains import wasi_snapshot_preview1 even when
// they never touch the system interface; Load(..., WithWASI()) provides
// wazero's implementation of it.
package wasmaddon
