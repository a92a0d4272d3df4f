package convert

import (
	"reflect"
	"strconv"

	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/env"
	"github.com/wippyai/addon-bridge/status"
)

// FromValue unmarshals a host value into out, which must be a non-nil
// pointer. Host kinds must match the Go shape exactly; nothing coerces.
// Intermediate handles are created in the environment's innermost open
// scope.
func FromValue(e *env.Env, v env.Value, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return status.InvalidInput(status.PhaseMarshal, "out must be a non-nil pointer")
	}
	return fromValueReflect(e, v, rv.Elem(), nil)
}

func fromValueReflect(e *env.Env, v env.Value, rv reflect.Value, path []string) error {
	raw, err := v.Use()
	if err != nil {
		return withPath(err, path)
	}
	k, err := kindOf(e, raw)
	if err != nil {
		return withPath(err, path)
	}

	switch rv.Kind() {
	case reflect.Pointer:
		if k == abi.KindNull || k == abi.KindUndefined {
			rv.SetZero()
			return nil
		}
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}
		return fromValueReflect(e, v, rv.Elem(), path)

	case reflect.Interface:
		if rv.NumMethod() != 0 {
			return unsupportedTarget(rv, path)
		}
		x, err := dynamic(e, v, k, path)
		if err != nil {
			return err
		}
		if x == nil {
			rv.SetZero()
		} else {
			rv.Set(reflect.ValueOf(x))
		}
		return nil

	case reflect.Bool:
		b, err := AsBool(e, v)
		if err != nil {
			return withPath(err, path)
		}
		rv.SetBool(b)
		return nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := AsInt64(e, v)
		if err != nil {
			return withPath(err, path)
		}
		if rv.OverflowInt(n) {
			return withPath(status.Overflow(nil, n, rv.Type().String()), path)
		}
		rv.SetInt(n)
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := AsUint64(e, v)
		if err != nil {
			return withPath(err, path)
		}
		if rv.OverflowUint(n) {
			return withPath(status.Overflow(nil, n, rv.Type().String()), path)
		}
		rv.SetUint(n)
		return nil

	case reflect.Float32, reflect.Float64:
		f, err := AsFloat64(e, v)
		if err != nil {
			return withPath(err, path)
		}
		if rv.OverflowFloat(f) {
			return withPath(status.Overflow(nil, f, rv.Type().String()), path)
		}
		rv.SetFloat(f)
		return nil

	case reflect.String:
		str, err := AsString(e, v)
		if err != nil {
			return withPath(err, path)
		}
		rv.SetString(str)
		return nil

	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			data, err := AsBytes(e, v)
			if err != nil {
				return withPath(err, path)
			}
			rv.SetBytes(data)
			return nil
		}
		return decodeArray(e, k, raw, rv, path)

	case reflect.Array:
		return decodeFixedArray(e, k, raw, rv, path)

	case reflect.Map:
		return decodeMap(e, k, raw, rv, path)

	case reflect.Struct:
		return decodeStruct(e, k, raw, rv, path)

	default:
		return unsupportedTarget(rv, path)
	}
}

func decodeArray(e *env.Env, k abi.ValueKind, raw abi.ValueHandle, rv reflect.Value, path []string) error {
	if k != abi.KindArray {
		return withPath(status.Expected(status.ArrayExpected, nil, rv.Type().String(), k.String()), path)
	}
	n, err := arrayLength(e, raw)
	if err != nil {
		return withPath(err, path)
	}
	out := reflect.MakeSlice(rv.Type(), int(n), int(n))
	for i := uint32(0); i < n; i++ {
		elem, err := getElement(e, raw, i)
		if err != nil {
			return withPath(err, path)
		}
		if err := fromValueReflect(e, elem, out.Index(int(i)), append(path, strconv.Itoa(int(i)))); err != nil {
			return err
		}
	}
	rv.Set(out)
	return nil
}

func decodeFixedArray(e *env.Env, k abi.ValueKind, raw abi.ValueHandle, rv reflect.Value, path []string) error {
	if k != abi.KindArray {
		return withPath(status.Expected(status.ArrayExpected, nil, rv.Type().String(), k.String()), path)
	}
	n, err := arrayLength(e, raw)
	if err != nil {
		return withPath(err, path)
	}
	if int(n) != rv.Len() {
		return withPath(status.New(status.PhaseMarshal, status.InvalidArg).
			GoType(rv.Type().String()).
			Detail("host array has %d elements, want %d", n, rv.Len()).
			Build(), path)
	}
	for i := uint32(0); i < n; i++ {
		elem, err := getElement(e, raw, i)
		if err != nil {
			return withPath(err, path)
		}
		if err := fromValueReflect(e, elem, rv.Index(int(i)), append(path, strconv.Itoa(int(i)))); err != nil {
			return err
		}
	}
	return nil
}

func decodeMap(e *env.Env, k abi.ValueKind, raw abi.ValueHandle, rv reflect.Value, path []string) error {
	if k != abi.KindObject {
		return withPath(status.Expected(status.ObjectExpected, nil, rv.Type().String(), k.String()), path)
	}
	if rv.Type().Key().Kind() != reflect.String {
		return unsupportedTarget(rv, path)
	}
	names, code := e.Host().OwnNames(e.Raw(), raw)
	if err := status.TranslateAt(code, status.PhaseMarshal, "list properties"); err != nil {
		return withPath(err, path)
	}
	out := reflect.MakeMapWithSize(rv.Type(), len(names))
	for _, name := range names {
		prop, err := getNamed(e, raw, name)
		if err != nil {
			return withPath(err, append(path, name))
		}
		elem := reflect.New(rv.Type().Elem()).Elem()
		if err := fromValueReflect(e, prop, elem, append(path, name)); err != nil {
			return err
		}
		out.SetMapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()), elem)
	}
	rv.Set(out)
	return nil
}

// decodeStruct leaves fields at their zero value when the host object has no
// matching property.
func decodeStruct(e *env.Env, k abi.ValueKind, raw abi.ValueHandle, rv reflect.Value, path []string) error {
	if k != abi.KindObject {
		return withPath(status.Expected(status.ObjectExpected, nil, rv.Type().String(), k.String()), path)
	}
	plan := planFor(rv.Type())
	for _, f := range plan.fields {
		has, code := e.Host().HasNamed(e.Raw(), raw, f.name)
		if err := status.TranslateAt(code, status.PhaseMarshal, "check property"); err != nil {
			return withPath(err, append(path, f.name))
		}
		if !has {
			continue
		}
		prop, err := getNamed(e, raw, f.name)
		if err != nil {
			return withPath(err, append(path, f.name))
		}
		if err := fromValueReflect(e, prop, rv.FieldByIndex(f.index), append(path, f.name)); err != nil {
			return err
		}
	}
	return nil
}

// dynamic maps a host value to the natural Go shape for `any` targets.
func dynamic(e *env.Env, v env.Value, k abi.ValueKind, path []string) (any, error) {
	switch k {
	case abi.KindUndefined, abi.KindNull:
		return nil, nil
	case abi.KindBoolean:
		return AsBool(e, v)
	case abi.KindNumber:
		return AsFloat64(e, v)
	case abi.KindBigInt:
		return AsInt64(e, v)
	case abi.KindString:
		return AsString(e, v)
	case abi.KindBuffer:
		return AsBytes(e, v)
	case abi.KindExternal:
		return AsExternal(e, v)
	case abi.KindArray:
		var out []any
		err := fromValueReflect(e, v, reflect.ValueOf(&out).Elem(), path)
		return out, err
	case abi.KindObject:
		var out map[string]any
		err := fromValueReflect(e, v, reflect.ValueOf(&out).Elem(), path)
		return out, err
	default:
		// Functions stay opaque; hand the caller the live handle.
		return v, nil
	}
}

func arrayLength(e *env.Env, raw abi.ValueHandle) (uint32, error) {
	n, code := e.Host().ArrayLength(e.Raw(), raw)
	return n, status.TranslateAt(code, status.PhaseMarshal, "array length")
}

func getElement(e *env.Env, arr abi.ValueHandle, i uint32) (env.Value, error) {
	raw, code := e.Host().GetElement(e.Raw(), arr, i)
	if err := status.TranslateAt(code, status.PhaseMarshal, "get array element"); err != nil {
		return env.Value{}, err
	}
	return e.Scope().Adopt(raw)
}

func getNamed(e *env.Env, obj abi.ValueHandle, name string) (env.Value, error) {
	raw, code := e.Host().GetNamed(e.Raw(), obj, name)
	if err := status.TranslateAt(code, status.PhaseMarshal, "get property"); err != nil {
		return env.Value{}, err
	}
	return e.Scope().Adopt(raw)
}

func unsupportedTarget(rv reflect.Value, path []string) error {
	return status.New(status.PhaseMarshal, status.GenericFailure).
		Path(path...).
		GoType(rv.Type().String()).
		Detail("cannot unmarshal into Go %s", rv.Kind()).
		Build()
}
