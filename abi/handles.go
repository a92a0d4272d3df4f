package abi

// EnvHandle identifies one environment call context. The host issues a fresh
// handle at the start of every inbound call and invalidates it the moment
// that call returns.
type EnvHandle uint64

// ValueHandle identifies a host value. Valid only within the handle scope it
// was created in (or escaped to).
type ValueHandle uint64

// RefHandle identifies a registered reference whose lifetime outlives any
// single scope.
type RefHandle uint64

// ScopeHandle identifies an open handle scope.
type ScopeHandle uint64

// WorkHandle identifies queued background work.
type WorkHandle uint64

// Handle 0 is reserved and always invalid for every handle type.
const None = 0

// ValueKind classifies a host value.
type ValueKind uint8

const (
	KindUndefined ValueKind = iota
	KindNull
	KindBoolean
	KindNumber
	KindString
	KindObject
	KindArray
	KindFunction
	KindExternal
	KindBuffer
	KindBigInt
)

var kindNames = [...]string{
	KindUndefined: "undefined",
	KindNull:      "null",
	KindBoolean:   "boolean",
	KindNumber:    "number",
	KindString:    "string",
	KindObject:    "object",
	KindArray:     "array",
	KindFunction:  "function",
	KindExternal:  "external",
	KindBuffer:    "buffer",
	KindBigInt:    "bigint",
}

// String returns the stable lowercase name of the kind.
func (k ValueKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Capability is a bitmask of optional host features.
type Capability uint32

const (
	// CapBigInt marks hosts with an arbitrary-precision integer value kind,
	// enabling the lossless 64-bit numeric path.
	CapBigInt Capability = 1 << iota

	// CapExternalBuffer marks hosts that can alias caller-owned byte memory
	// instead of copying it.
	CapExternalBuffer
)

// Has reports whether every capability in want is present.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}
