// Package convert marshals Go values to host values and back.
//
// # Numbers
//
// Host numbers are IEEE-754 doubles. 64-bit Go integers marshal exactly when
// they fit the ±(2^53-1) safe range; outside it the conversion takes the
// host's arbitrary-precision integer kind when abi.CapBigInt is advertised
// and fails with an overflow error otherwise. Nothing truncates silently, in
// either direction.
//
// # Strings
//
// Go strings are UTF-8, host strings are UTF-16 code units. Ill-formed input
// is substituted with U+FFFD in both directions: unpaired surrogates coming
// from the host, invalid bytes going to it. Conversion is total and
// deterministic, and well-formed text round-trips exactly.
//
// # Buffers
//
// Byte buffers are copied by default (Bytes). ExternalBytes instead hands
// the host an alias of the caller's memory and requires a finalizer, which
// the host runs exactly once when the buffer is reclaimed; it needs
// abi.CapExternalBuffer. Ownership is always explicit, never inferred.
//
// # Composites
//
// ToValue and FromValue convert structs, maps, slices and pointers through
// reflection. Struct conversion runs off a per-type plan compiled once and
// cached for the process lifetime. Field names become lowerCamel; a
// `bridge:"name"` tag overrides, `bridge:"-"` skips:
//
//	type Point struct {
//		X      float64
//		Y      float64
//		Secret string `bridge:"-"`
//	}
//
// Kind mismatches while decoding report which host kind was required
// (status.NumberExpected, status.ObjectExpected, ...) with the path to the
// offending element; nothing coerces.
//
// Decoded intermediate handles live in the environment's innermost open
// scope, so bulk decodes belong inside Env.InScope.
package convert
