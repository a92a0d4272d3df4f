package convert

import (
	"errors"
	"reflect"
	"sort"
	"strconv"

	"github.com/wippyai/addon-bridge/env"
	"github.com/wippyai/addon-bridge/status"
)

// ToValue marshals an arbitrary Go value into a host value in scope s.
// Pointers and interfaces marshal their referent; nil becomes host null.
func ToValue(e *env.Env, s *env.Scope, v any) (env.Value, error) {
	switch x := v.(type) {
	case nil:
		return e.Null(s)
	case env.Value:
		if _, err := x.Use(); err != nil {
			return env.Value{}, err
		}
		return x, nil
	case bool:
		return Bool(e, s, x)
	case int:
		return Int64(e, s, int64(x))
	case int8:
		return Float64(e, s, float64(x))
	case int16:
		return Float64(e, s, float64(x))
	case int32:
		return Float64(e, s, float64(x))
	case int64:
		return Int64(e, s, x)
	case uint:
		return Uint64(e, s, uint64(x))
	case uint8:
		return Float64(e, s, float64(x))
	case uint16:
		return Float64(e, s, float64(x))
	case uint32:
		return Float64(e, s, float64(x))
	case uint64:
		return Uint64(e, s, x)
	case float32:
		return Float64(e, s, float64(x))
	case float64:
		return Float64(e, s, x)
	case string:
		return String(e, s, x)
	case []byte:
		return Bytes(e, s, x)
	}
	return toValueReflect(e, s, reflect.ValueOf(v), nil)
}

func toValueReflect(e *env.Env, s *env.Scope, rv reflect.Value, path []string) (env.Value, error) {
	switch rv.Kind() {
	case reflect.Invalid:
		return e.Null(s)

	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return e.Null(s)
		}
		return toValueReflect(e, s, rv.Elem(), path)

	case reflect.Bool:
		return Bool(e, s, rv.Bool())

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err := Int64(e, s, rv.Int())
		return v, withPath(err, path)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err := Uint64(e, s, rv.Uint())
		return v, withPath(err, path)

	case reflect.Float32, reflect.Float64:
		return Float64(e, s, rv.Float())

	case reflect.String:
		return String(e, s, rv.String())

	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return Bytes(e, s, rv.Bytes())
		}
		return encodeArray(e, s, rv, path)

	case reflect.Array:
		return encodeArray(e, s, rv, path)

	case reflect.Map:
		return encodeMap(e, s, rv, path)

	case reflect.Struct:
		return encodeStruct(e, s, rv, path)

	default:
		return env.Value{}, status.New(status.PhaseMarshal, status.GenericFailure).
			Path(path...).
			GoType(rv.Type().String()).
			Detail("cannot marshal Go %s", rv.Kind()).
			Build()
	}
}

func encodeArray(e *env.Env, s *env.Scope, rv reflect.Value, path []string) (env.Value, error) {
	n := rv.Len()
	arrRaw, code := e.Host().CreateArray(e.Raw(), n)
	arr, err := adopt(s, arrRaw, code, "create array")
	if err != nil {
		return env.Value{}, withPath(err, path)
	}
	for i := 0; i < n; i++ {
		elem, err := toValueReflect(e, s, rv.Index(i), append(path, strconv.Itoa(i)))
		if err != nil {
			return env.Value{}, err
		}
		raw, err := elem.Use()
		if err != nil {
			return env.Value{}, err
		}
		code := e.Host().SetElement(e.Raw(), arr.Raw(), uint32(i), raw)
		if err := status.TranslateAt(code, status.PhaseMarshal, "set array element"); err != nil {
			return env.Value{}, withPath(err, append(path, strconv.Itoa(i)))
		}
	}
	return arr, nil
}

// encodeMap writes string-keyed maps in sorted key order so output is
// deterministic.
func encodeMap(e *env.Env, s *env.Scope, rv reflect.Value, path []string) (env.Value, error) {
	if rv.Type().Key().Kind() != reflect.String {
		return env.Value{}, status.New(status.PhaseMarshal, status.GenericFailure).
			Path(path...).
			GoType(rv.Type().String()).
			Detail("map keys must be strings").
			Build()
	}
	objRaw, code := e.Host().CreateObject(e.Raw())
	obj, err := adopt(s, objRaw, code, "create object")
	if err != nil {
		return env.Value{}, withPath(err, path)
	}

	keys := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		keys = append(keys, iter.Key().String())
	}
	sort.Strings(keys)

	for _, k := range keys {
		elem, err := toValueReflect(e, s, rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())), append(path, k))
		if err != nil {
			return env.Value{}, err
		}
		if err := setNamed(e, obj, k, elem, append(path, k)); err != nil {
			return env.Value{}, err
		}
	}
	return obj, nil
}

func encodeStruct(e *env.Env, s *env.Scope, rv reflect.Value, path []string) (env.Value, error) {
	plan := planFor(rv.Type())
	objRaw, code := e.Host().CreateObject(e.Raw())
	obj, err := adopt(s, objRaw, code, "create object")
	if err != nil {
		return env.Value{}, withPath(err, path)
	}
	for _, f := range plan.fields {
		elem, err := toValueReflect(e, s, rv.FieldByIndex(f.index), append(path, f.name))
		if err != nil {
			return env.Value{}, err
		}
		if err := setNamed(e, obj, f.name, elem, append(path, f.name)); err != nil {
			return env.Value{}, err
		}
	}
	return obj, nil
}

func setNamed(e *env.Env, obj env.Value, name string, v env.Value, path []string) error {
	raw, err := v.Use()
	if err != nil {
		return err
	}
	code := e.Host().SetNamed(e.Raw(), obj.Raw(), name, raw)
	return withPath(status.TranslateAt(code, status.PhaseMarshal, "set property"), path)
}

// withPath stamps the conversion path onto a structured error that does not
// carry one yet.
func withPath(err error, path []string) error {
	if err == nil || len(path) == 0 {
		return err
	}
	var se *status.Error
	if errors.As(err, &se) && len(se.Path) == 0 {
		dup := *se
		dup.Path = append([]string(nil), path...)
		return &dup
	}
	return err
}
