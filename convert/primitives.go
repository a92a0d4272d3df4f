package convert

import (
	"math"
	"unicode/utf16"

	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/env"
	"github.com/wippyai/addon-bridge/status"
)

// Safe integer bounds for exact representation in a host double.
const (
	maxSafeInteger = 1<<53 - 1
	minSafeInteger = -(1<<53 - 1)
)

func adopt(s *env.Scope, raw abi.ValueHandle, code status.Code, what string) (env.Value, error) {
	if err := status.TranslateAt(code, status.PhaseMarshal, what); err != nil {
		return env.Value{}, err
	}
	return s.Adopt(raw)
}

// Bool creates a host boolean in scope s.
func Bool(e *env.Env, s *env.Scope, b bool) (env.Value, error) {
	raw, code := e.Host().CreateBoolean(e.Raw(), b)
	return adopt(s, raw, code, "create boolean")
}

// Float64 creates a host number in scope s.
func Float64(e *env.Env, s *env.Scope, f float64) (env.Value, error) {
	raw, code := e.Host().CreateNumber(e.Raw(), f)
	return adopt(s, raw, code, "create number")
}

// Int64 creates a host number when n fits the safe integer range, a host
// bigint when the host supports one, and fails otherwise.
func Int64(e *env.Env, s *env.Scope, n int64) (env.Value, error) {
	if n >= minSafeInteger && n <= maxSafeInteger {
		return Float64(e, s, float64(n))
	}
	if e.Capabilities().Has(abi.CapBigInt) {
		raw, code := e.Host().CreateBigIntInt64(e.Raw(), n)
		return adopt(s, raw, code, "create bigint")
	}
	return env.Value{}, status.Overflow(nil, n, "float64")
}

// Uint64 is Int64 for unsigned values.
func Uint64(e *env.Env, s *env.Scope, n uint64) (env.Value, error) {
	if n <= maxSafeInteger {
		return Float64(e, s, float64(n))
	}
	if e.Capabilities().Has(abi.CapBigInt) {
		raw, code := e.Host().CreateBigIntUint64(e.Raw(), n)
		return adopt(s, raw, code, "create bigint")
	}
	return env.Value{}, status.Overflow(nil, n, "float64")
}

// String creates a host string in scope s. Invalid UTF-8 bytes become
// U+FFFD.
func String(e *env.Env, s *env.Scope, str string) (env.Value, error) {
	raw, code := e.Host().CreateStringUTF16(e.Raw(), encodeUTF16(str))
	return adopt(s, raw, code, "create string")
}

// Bytes creates a host buffer holding a copy of data.
func Bytes(e *env.Env, s *env.Scope, data []byte) (env.Value, error) {
	raw, code := e.Host().CreateBufferCopy(e.Raw(), data)
	return adopt(s, raw, code, "create buffer")
}

// ExternalBytes creates a host buffer aliasing data without a copy. The
// finalizer is mandatory: it releases whatever keeps data alive and runs
// exactly once when the host reclaims the buffer.
func ExternalBytes(e *env.Env, s *env.Scope, data []byte, fin func()) (env.Value, error) {
	if fin == nil {
		return env.Value{}, status.InvalidInput(status.PhaseMarshal,
			"external buffer requires a finalizer")
	}
	if !e.Capabilities().Has(abi.CapExternalBuffer) {
		return env.Value{}, status.Unsupported(status.PhaseMarshal,
			"host cannot alias external buffers")
	}
	raw, code := e.Host().CreateExternalBuffer(e.Raw(), data, fin)
	return adopt(s, raw, code, "create external buffer")
}

// AsBool reads a host boolean.
func AsBool(e *env.Env, v env.Value) (bool, error) {
	raw, err := requireKind(e, v, abi.KindBoolean, status.BooleanExpected, "bool")
	if err != nil {
		return false, err
	}
	b, code := e.Host().BoolValue(e.Raw(), raw)
	return b, status.TranslateAt(code, status.PhaseMarshal, "read boolean")
}

// AsFloat64 reads a host number.
func AsFloat64(e *env.Env, v env.Value) (float64, error) {
	raw, err := requireKind(e, v, abi.KindNumber, status.NumberExpected, "float64")
	if err != nil {
		return 0, err
	}
	f, code := e.Host().NumberValue(e.Raw(), raw)
	return f, status.TranslateAt(code, status.PhaseMarshal, "read number")
}

// AsInt64 reads a host number or bigint as an exact int64.
func AsInt64(e *env.Env, v env.Value) (int64, error) {
	raw, err := v.Use()
	if err != nil {
		return 0, err
	}
	k, err := kindOf(e, raw)
	if err != nil {
		return 0, err
	}
	switch k {
	case abi.KindNumber:
		f, code := e.Host().NumberValue(e.Raw(), raw)
		if err := status.TranslateAt(code, status.PhaseMarshal, "read number"); err != nil {
			return 0, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) || math.Trunc(f) != f {
			return 0, status.New(status.PhaseMarshal, status.InvalidArg).
				GoType("int64").
				Detail("number %v is not an integer", f).
				Build()
		}
		if f < minSafeInteger || f > maxSafeInteger {
			return 0, status.Overflow(nil, f, "int64")
		}
		return int64(f), nil
	case abi.KindBigInt:
		n, lossless, code := e.Host().BigIntInt64(e.Raw(), raw)
		if err := status.TranslateAt(code, status.PhaseMarshal, "read bigint"); err != nil {
			return 0, err
		}
		if !lossless {
			return 0, status.Overflow(nil, "bigint", "int64")
		}
		return n, nil
	default:
		return 0, status.Expected(status.NumberExpected, nil, "int64", k.String())
	}
}

// AsUint64 reads a host number or bigint as an exact uint64.
func AsUint64(e *env.Env, v env.Value) (uint64, error) {
	raw, err := v.Use()
	if err != nil {
		return 0, err
	}
	k, err := kindOf(e, raw)
	if err != nil {
		return 0, err
	}
	switch k {
	case abi.KindNumber:
		f, code := e.Host().NumberValue(e.Raw(), raw)
		if err := status.TranslateAt(code, status.PhaseMarshal, "read number"); err != nil {
			return 0, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) || math.Trunc(f) != f || f < 0 {
			return 0, status.New(status.PhaseMarshal, status.InvalidArg).
				GoType("uint64").
				Detail("number %v is not an unsigned integer", f).
				Build()
		}
		if f > maxSafeInteger {
			return 0, status.Overflow(nil, f, "uint64")
		}
		return uint64(f), nil
	case abi.KindBigInt:
		n, lossless, code := e.Host().BigIntUint64(e.Raw(), raw)
		if err := status.TranslateAt(code, status.PhaseMarshal, "read bigint"); err != nil {
			return 0, err
		}
		if !lossless {
			return 0, status.Overflow(nil, "bigint", "uint64")
		}
		return n, nil
	default:
		return 0, status.Expected(status.NumberExpected, nil, "uint64", k.String())
	}
}

// AsString reads a host string. Unpaired surrogates become U+FFFD.
func AsString(e *env.Env, v env.Value) (string, error) {
	raw, err := requireKind(e, v, abi.KindString, status.StringExpected, "string")
	if err != nil {
		return "", err
	}
	units, code := e.Host().StringUTF16(e.Raw(), raw)
	if err := status.TranslateAt(code, status.PhaseMarshal, "read string"); err != nil {
		return "", err
	}
	return decodeUTF16(units), nil
}

// AsBytes reads a host buffer into a fresh Go slice.
func AsBytes(e *env.Env, v env.Value) ([]byte, error) {
	raw, err := requireKind(e, v, abi.KindBuffer, status.BufferExpected, "[]byte")
	if err != nil {
		return nil, err
	}
	data, code := e.Host().BufferData(e.Raw(), raw)
	if err := status.TranslateAt(code, status.PhaseMarshal, "read buffer"); err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func kindOf(e *env.Env, raw abi.ValueHandle) (abi.ValueKind, error) {
	k, code := e.Host().KindOf(e.Raw(), raw)
	if err := status.TranslateAt(code, status.PhaseMarshal, "value kind"); err != nil {
		return abi.KindUndefined, err
	}
	return k, nil
}

func requireKind(e *env.Env, v env.Value, want abi.ValueKind, expected status.Code, goType string) (abi.ValueHandle, error) {
	raw, err := v.Use()
	if err != nil {
		return abi.None, err
	}
	k, err := kindOf(e, raw)
	if err != nil {
		return abi.None, err
	}
	if k != want {
		return abi.None, status.Expected(expected, nil, goType, k.String())
	}
	return raw, nil
}

func encodeUTF16(s string) []uint16 {
	return utf16.Encode([]rune(s))
}

func decodeUTF16(units []uint16) string {
	return string(utf16.Decode(units))
}
