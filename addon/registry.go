package addon

import (
	"errors"

	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/convert"
	"github.com/wippyai/addon-bridge/env"
	"github.com/wippyai/addon-bridge/internal/casing"
	"github.com/wippyai/addon-bridge/status"
)

type exportKind int

const (
	kindCallback exportKind = iota
	kindFunc
	kindValue
)

type export struct {
	name  string
	kind  exportKind
	cb    abi.Callback
	fn    *boundFunc
	value any
	arity int
}

// Registry collects named exports until Define turns them into a host
// exports object. Export order is registration order. A Registry is not
// safe for concurrent use; populate it before handing it to a host.
type Registry struct {
	exports  []export
	index    map[string]int
	onLoad   []func(*env.Env) error
	onUnload []func()
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

func (r *Registry) add(ex export) error {
	if ex.name == "" {
		return status.Registration(ex.name, errors.New("empty export name"))
	}
	if _, dup := r.index[ex.name]; dup {
		return status.Registration(ex.name, errors.New("duplicate export name"))
	}
	r.index[ex.name] = len(r.exports)
	r.exports = append(r.exports, ex)
	return nil
}

// RegisterCallback exposes a raw callback under name. The callback works
// at the handle level and is responsible for its own scopes and error
// conversion; prefer RegisterFunc unless raw access is required. arity is
// advisory metadata for hosts that surface it.
func (r *Registry) RegisterCallback(name string, cb abi.Callback, arity int) error {
	if cb == nil {
		return status.Registration(name, errors.New("nil callback"))
	}
	return r.add(export{name: name, kind: kindCallback, cb: cb, arity: arity})
}

// RegisterFunc exposes a typed Go function under name. fn must look like
//
//	func(e *env.Env, in ...T) (out R, err error)
//
// where the ins and out are types the convert package can marshal; the out
// and err results are each optional. Arguments the host call omits decode
// as undefined.
func (r *Registry) RegisterFunc(name string, fn any) error {
	bf, err := bindFunc(fn)
	if err != nil {
		return status.Registration(name, err)
	}
	return r.add(export{name: name, kind: kindFunc, fn: bf, arity: len(bf.plan.args)})
}

// RegisterValue exposes a constant under name, marshaled when the exports
// object is built.
func (r *Registry) RegisterValue(name string, v any) error {
	return r.add(export{name: name, kind: kindValue, value: v})
}

// RegisterAddon sweeps the exported methods of a into the registry. Method
// names convert to lowerCamel, so GetHTTPStatus exports as getHttpStatus.
// Methods whose first parameter is not *env.Env are skipped as helpers;
// the rest must have the RegisterFunc shape.
func (r *Registry) RegisterAddon(a any) error {
	added, err := r.addMethods(a)
	if err != nil {
		return err
	}
	if added == 0 {
		return status.Registration("", errors.New("addon has no exportable methods"))
	}
	return nil
}

// OnLoad registers fn to run on the environment thread right after Define
// populates the exports object. A load hook error fails the definition.
func (r *Registry) OnLoad(fn func(*env.Env) error) {
	if fn != nil {
		r.onLoad = append(r.onLoad, fn)
	}
}

// OnUnload registers fn to run when the host environment is torn down.
func (r *Registry) OnUnload(fn func()) {
	if fn != nil {
		r.onUnload = append(r.onUnload, fn)
	}
}

// Names returns the export names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.exports))
	for i, ex := range r.exports {
		names[i] = ex.name
	}
	return names
}

// Arity reports the advisory argument count registered for name, or -1
// when the export is unknown or not a function.
func (r *Registry) Arity(name string) int {
	i, ok := r.index[name]
	if !ok {
		return -1
	}
	ex := r.exports[i]
	if ex.kind == kindValue {
		return -1
	}
	return ex.arity
}

// Define builds the exports object in scope s, runs the load hooks, and
// hands the unload hooks to the host as cleanup callbacks. Hosts call this
// once per environment when loading the module.
func (r *Registry) Define(e *env.Env, s *env.Scope) (env.Value, error) {
	h := e.Host()
	rawObj, code := h.CreateObject(e.Raw())
	if err := status.TranslateAt(code, status.PhaseModule, "create exports object"); err != nil {
		return env.Value{}, err
	}
	exports, err := s.Adopt(rawObj)
	if err != nil {
		return env.Value{}, err
	}

	for _, ex := range r.exports {
		v, err := r.defineExport(e, s, ex)
		if err != nil {
			return env.Value{}, status.Registration(ex.name, err)
		}
		raw, err := v.Use()
		if err != nil {
			return env.Value{}, status.Registration(ex.name, err)
		}
		code := h.SetNamed(e.Raw(), rawObj, ex.name, raw)
		if err := status.TranslateAt(code, status.PhaseModule, "set export"); err != nil {
			return env.Value{}, status.Registration(ex.name, err)
		}
	}

	for _, hook := range r.onLoad {
		if err := hook(e); err != nil {
			return env.Value{}, status.Wrap(status.PhaseModule, status.CodeOf(err), err, "load hook failed")
		}
	}
	for _, hook := range r.onUnload {
		if err := e.AddCleanup(hook); err != nil {
			return env.Value{}, err
		}
	}
	return exports, nil
}

func (r *Registry) defineExport(e *env.Env, s *env.Scope, ex export) (env.Value, error) {
	switch ex.kind {
	case kindCallback:
		return e.CreateFunction(s, ex.name, ex.cb)
	case kindFunc:
		return e.CreateFunction(s, ex.name, ex.fn.callback(e.Host(), ex.name))
	case kindValue:
		return convert.ToValue(e, s, ex.value)
	default:
		return env.Value{}, status.Unsupported(status.PhaseModule, "unknown export kind")
	}
}

func (r *Registry) addMethods(a any) (int, error) {
	methods, err := exportedMethods(a)
	if err != nil {
		return 0, status.Registration("", err)
	}
	added := 0
	for _, m := range methods {
		name := casing.LowerCamel(m.name)
		bf, err := bindFunc(m.fn)
		if err != nil {
			if errors.Is(err, errNotExport) {
				continue
			}
			return added, status.Registration(name, err)
		}
		if err := r.add(export{name: name, kind: kindFunc, fn: bf, arity: len(bf.plan.args)}); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}
