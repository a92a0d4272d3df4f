package addon

import (
	"errors"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/convert"
	"github.com/wippyai/addon-bridge/env"
	"github.com/wippyai/addon-bridge/status"
)

var (
	envType = reflect.TypeOf((*env.Env)(nil))
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

// errNotExport marks functions whose shape says they were never meant to
// be exported: no *env.Env first parameter.
var errNotExport = errors.New("first parameter must be *env.Env")

type funcPlan struct {
	args   []reflect.Type
	hasRes bool
	hasErr bool
}

type boundFunc struct {
	fn   reflect.Value
	plan *funcPlan
}

func bindFunc(fn any) (*boundFunc, error) {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func {
		return nil, errors.New("export must be a function")
	}
	if v.IsNil() {
		return nil, errors.New("nil function")
	}
	t := v.Type()
	if t.IsVariadic() {
		return nil, errors.New("variadic functions are not supported")
	}
	if t.NumIn() == 0 || t.In(0) != envType {
		return nil, errNotExport
	}
	plan := &funcPlan{}
	for i := 1; i < t.NumIn(); i++ {
		plan.args = append(plan.args, t.In(i))
	}
	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errType {
			plan.hasErr = true
		} else {
			plan.hasRes = true
		}
	case 2:
		if t.Out(1) != errType {
			return nil, errors.New("second result must be error")
		}
		if t.Out(0) == errType {
			return nil, errors.New("first result must not be error")
		}
		plan.hasRes = true
		plan.hasErr = true
	default:
		return nil, fmt.Errorf("too many results: %d", t.NumOut())
	}
	return &boundFunc{fn: v, plan: plan}, nil
}

// callback wires the bound function into the raw callback shape for host h.
func (bf *boundFunc) callback(h abi.Host, name string) abi.Callback {
	return func(rawEnv abi.EnvHandle, info *abi.CallInfo) (result abi.ValueHandle) {
		defer func() {
			if r := recover(); r != nil {
				Logger().Error("exported function panicked",
					zap.String("export", name),
					zap.Any("panic", r))
				h.ThrowError(rawEnv, status.GenericFailure.String(),
					fmt.Sprintf("export %s panicked: %v", name, r))
				result = abi.None
			}
		}()
		out, err := env.EnterCallback(h, rawEnv, func(e *env.Env) (env.Value, error) {
			return bf.invoke(e, info)
		})
		if err != nil {
			Logger().Error("export invocation failed",
				zap.String("export", name),
				zap.Error(err))
			h.ThrowError(rawEnv, status.CodeOf(err).String(), err.Error())
			return abi.None
		}
		return out
	}
}

// invoke decodes arguments, calls the Go function, and encodes the result.
// Expected failures become pending host exceptions rather than returned
// errors, so the host reports a throw instead of an internal fault.
func (bf *boundFunc) invoke(e *env.Env, info *abi.CallInfo) (env.Value, error) {
	s := e.Scope()
	in := make([]reflect.Value, len(bf.plan.args)+1)
	in[0] = reflect.ValueOf(e)
	for i, at := range bf.plan.args {
		hv, err := bf.arg(e, s, info, i)
		if err != nil {
			return env.Value{}, err
		}
		target := reflect.New(at)
		if err := convert.FromValue(e, hv, target.Interface()); err != nil {
			return throwback(e, err)
		}
		in[i+1] = target.Elem()
	}

	out := bf.fn.Call(in)
	if bf.plan.hasErr {
		if errv := out[len(out)-1]; !errv.IsNil() {
			return throwback(e, errv.Interface().(error))
		}
	}
	if bf.plan.hasRes {
		v, err := convert.ToValue(e, s, out[0].Interface())
		if err != nil {
			return throwback(e, err)
		}
		return v, nil
	}
	return env.Value{}, nil
}

// arg fetches the i-th call argument, substituting undefined for arguments
// the host call omitted.
func (bf *boundFunc) arg(e *env.Env, s *env.Scope, info *abi.CallInfo, i int) (env.Value, error) {
	if info != nil && i < len(info.Args) && info.Args[i] != abi.None {
		return s.Adopt(info.Args[i])
	}
	return e.Undefined(s)
}

// throwback turns err into the pending exception and reports success to
// the wrapper. An err already marked PendingException leaves the host's
// exception in place.
func throwback(e *env.Env, err error) (env.Value, error) {
	if terr := e.Throw(err); terr != nil {
		return env.Value{}, terr
	}
	return env.Value{}, nil
}

type method struct {
	name string
	fn   any
}

func exportedMethods(a any) ([]method, error) {
	v := reflect.ValueOf(a)
	if !v.IsValid() {
		return nil, errors.New("nil addon")
	}
	t := v.Type()
	n := t.NumMethod()
	methods := make([]method, 0, n)
	for i := 0; i < n; i++ {
		m := t.Method(i)
		if !m.IsExported() {
			continue
		}
		methods = append(methods, method{name: m.Name, fn: v.Method(i).Interface()})
	}
	return methods, nil
}
