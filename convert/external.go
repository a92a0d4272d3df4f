package convert

import (
	"sync"
	"sync/atomic"

	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/env"
	"github.com/wippyai/addon-bridge/status"
)

// Externals cross the boundary as opaque tokens; the Go values themselves
// stay in this process-wide registry. Token 0 is never issued.
var (
	externals sync.Map // uint64 -> any
	lastToken atomic.Uint64
)

// External wraps a Go value into an opaque host value. The host sees only a
// token; the value is pinned in the registry until the host reclaims the
// external, at which point fin (optional) runs and the pin drops.
func External(e *env.Env, s *env.Scope, v any, fin func()) (env.Value, error) {
	token := lastToken.Add(1)
	externals.Store(token, v)
	release := func() {
		externals.Delete(token)
		if fin != nil {
			fin()
		}
	}
	raw, code := e.Host().CreateExternal(e.Raw(), token, release)
	val, err := adopt(s, raw, code, "create external")
	if err != nil {
		externals.Delete(token)
		return env.Value{}, err
	}
	return val, nil
}

// AsExternal returns the Go value wrapped by a host external.
func AsExternal(e *env.Env, v env.Value) (any, error) {
	raw, err := requireKind(e, v, abi.KindExternal, status.ObjectExpected, "external")
	if err != nil {
		return nil, err
	}
	token, code := e.Host().ExternalToken(e.Raw(), raw)
	if err := status.TranslateAt(code, status.PhaseMarshal, "read external"); err != nil {
		return nil, err
	}
	x, ok := externals.Load(token)
	if !ok {
		return nil, &status.Error{
			Phase:  status.PhaseMarshal,
			Code:   status.InvalidArg,
			Detail: "external value is not registered with this bridge",
		}
	}
	return x, nil
}
