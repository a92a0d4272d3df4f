// Package status translates raw boundary status codes into structured errors.
//
// Every host ABI entry point returns a Code. Translate converts a non-OK code
// into an *Error without touching any other host state; in particular it
// never inspects or clears a pending host exception. Callers that observe
// PendingException and cannot handle it must return the error unmodified so
// the exception survives to the host-visible unwind.
//
// Errors are categorized by Phase (which layer produced or observed the
// failure) and carry the originating Code plus rich context: field path,
// Go type, host value kind, detail text, and cause chain.
//
// Use the Builder for structured construction:
//
//	err := status.New(status.PhaseMarshal, status.InvalidArg).
//		Path("user", "age").
//		GoType("string").
//		HostKind("number").
//		Detail("cannot decode number into string").
//		Build()
//
// Or the convenience constructors for common patterns:
//
//	err := status.Expected(status.StringExpected, path, "string", "object")
//	err := status.Overflow(path, v, "float64")
//
// All errors implement the standard error interface and support errors.Is/As.
package status
