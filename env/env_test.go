package env_test

import (
	"errors"
	"testing"

	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/env"
	"github.com/wippyai/addon-bridge/fakehost"
	"github.com/wippyai/addon-bridge/status"
)

func TestEnter_RootScopeOpen(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	err := h.WithEnv(func(e *env.Env) error {
		s := e.Scope()
		if s == nil {
			t.Fatal("no root scope inside Enter")
		}
		v, err := e.Undefined(s)
		if err != nil {
			t.Fatalf("Undefined: %v", err)
		}
		k, err := v.Kind()
		if err != nil {
			t.Fatalf("Kind: %v", err)
		}
		if k != abi.KindUndefined {
			t.Fatalf("kind: got %v", k)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithEnv: %v", err)
	}
}

func TestEnv_UseAfterReturnPanics(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	var escaped *env.Env
	err := h.WithEnv(func(e *env.Env) error {
		escaped = e
		return nil
	})
	if err != nil {
		t.Fatalf("WithEnv: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("environment use after return did not panic")
		}
	}()
	escaped.Scope()
}

func TestEnv_CrossGoroutinePanics(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	panicked := make(chan bool, 1)
	err := h.WithEnv(func(e *env.Env) error {
		done := make(chan struct{})
		go func() {
			defer close(done)
			defer func() { panicked <- recover() != nil }()
			e.Scope()
		}()
		<-done
		return nil
	})
	if err != nil {
		t.Fatalf("WithEnv: %v", err)
	}
	if !<-panicked {
		t.Fatal("cross-goroutine environment use did not panic")
	}
}

func TestInScope_ValueDiesWithScope(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	err := h.WithEnv(func(e *env.Env) error {
		var leaked env.Value
		err := e.InScope(func(s *env.Scope) error {
			v, err := e.Null(s)
			if err != nil {
				return err
			}
			leaked = v
			return nil
		})
		if err != nil {
			return err
		}
		if _, err := leaked.Use(); err == nil {
			t.Fatal("value usable after its scope closed")
		} else if status.CodeOf(err) != status.InvalidArg {
			t.Fatalf("wrong failure: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithEnv: %v", err)
	}
}

func TestInScope_PanicStillCloses(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	err := h.WithEnv(func(e *env.Env) error {
		root := e.Scope()
		func() {
			defer func() { recover() }()
			_ = e.InScope(func(s *env.Scope) error {
				panic("boom")
			})
		}()
		if e.Scope() != root {
			t.Fatal("scope stack not restored after panic")
		}
		if _, err := e.Undefined(root); err != nil {
			t.Fatalf("root scope unusable after panic: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithEnv: %v", err)
	}
}

func TestEscape_PromotesValue(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	err := h.WithEnv(func(e *env.Env) error {
		kept, err := e.InEscapableScope(func(s *env.EscapableScope) (env.Value, error) {
			v, err := e.Global(&s.Scope)
			if err != nil {
				return env.Value{}, err
			}
			return s.Escape(v)
		})
		if err != nil {
			return err
		}
		if _, err := kept.Use(); err != nil {
			t.Fatalf("escaped value unusable: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithEnv: %v", err)
	}
}

func TestEscape_SecondCallFails(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	err := h.WithEnv(func(e *env.Env) error {
		_, err := e.InEscapableScope(func(s *env.EscapableScope) (env.Value, error) {
			v, err := e.Null(&s.Scope)
			if err != nil {
				return env.Value{}, err
			}
			if _, err := s.Escape(v); err != nil {
				return env.Value{}, err
			}
			_, err = s.Escape(v)
			if err == nil {
				t.Fatal("second escape succeeded")
			}
			if status.CodeOf(err) != status.EscapeCalledTwice {
				t.Fatalf("second escape: got %v, want EscapeCalledTwice", err)
			}
			return env.Value{}, nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("WithEnv: %v", err)
	}
}

func TestEscape_UnescapedValueDies(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	err := h.WithEnv(func(e *env.Env) error {
		var inner env.Value
		_, err := e.InEscapableScope(func(s *env.EscapableScope) (env.Value, error) {
			v, err := e.Null(&s.Scope)
			if err != nil {
				return env.Value{}, err
			}
			inner = v
			return env.Value{}, nil
		})
		if err != nil {
			return err
		}
		if _, err := inner.Use(); err == nil {
			t.Fatal("unescaped value survived its scope")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithEnv: %v", err)
	}
}

func TestThrow_SetsPendingAndClearReturnsIt(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	err := h.WithEnv(func(e *env.Env) error {
		if err := e.Throw(status.InvalidInput(status.PhaseCall, "bad thing")); err != nil {
			t.Fatalf("Throw: %v", err)
		}
		pending, err := e.ExceptionPending()
		if err != nil {
			t.Fatalf("ExceptionPending: %v", err)
		}
		if !pending {
			t.Fatal("no pending exception after throw")
		}

		exc, ok, err := e.ClearPending(e.Scope())
		if err != nil {
			t.Fatalf("ClearPending: %v", err)
		}
		if !ok {
			t.Fatal("ClearPending found nothing")
		}
		k, err := exc.Kind()
		if err != nil {
			t.Fatalf("Kind: %v", err)
		}
		if k != abi.KindObject {
			t.Fatalf("exception kind: got %v", k)
		}

		pending, err = e.ExceptionPending()
		if err != nil {
			t.Fatalf("ExceptionPending: %v", err)
		}
		if pending {
			t.Fatal("exception still pending after clear")
		}

		// Clearing again reports nothing without error.
		_, ok, err = e.ClearPending(e.Scope())
		if err != nil || ok {
			t.Fatalf("second clear: ok=%v err=%v", ok, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithEnv: %v", err)
	}
}

func TestThrow_PendingExceptionErrorIsNoop(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	err := h.WithEnv(func(e *env.Env) error {
		if err := e.Throw(status.Translate(status.PendingException)); err != nil {
			t.Fatalf("Throw: %v", err)
		}
		pending, err := e.ExceptionPending()
		if err != nil {
			t.Fatalf("ExceptionPending: %v", err)
		}
		if pending {
			t.Fatal("PendingException error must not create a new exception")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithEnv: %v", err)
	}
}

func TestCallFunction_RoundTrip(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	identity := func(envH abi.EnvHandle, info *abi.CallInfo) abi.ValueHandle {
		if len(info.Args) > 0 {
			return info.Args[0]
		}
		return abi.None
	}

	err := h.WithEnv(func(e *env.Env) error {
		return e.InScope(func(s *env.Scope) error {
			fn, err := e.CreateFunction(s, "identity", identity)
			if err != nil {
				return err
			}
			arg, err := e.Global(s)
			if err != nil {
				return err
			}
			ret, err := e.CallFunction(s, env.Value{}, fn, arg)
			if err != nil {
				return err
			}
			same, err := e.StrictEquals(arg, ret)
			if err != nil {
				return err
			}
			if !same {
				t.Fatal("identity result is not the argument")
			}
			return nil
		})
	})
	if err != nil {
		t.Fatalf("WithEnv: %v", err)
	}
}

func TestCallFunction_ThrowLeavesPending(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	thrower := func(envH abi.EnvHandle, info *abi.CallInfo) abi.ValueHandle {
		h.ThrowError(envH, "generic_failure", "from callback")
		return abi.None
	}

	err := h.WithEnv(func(e *env.Env) error {
		return e.InScope(func(s *env.Scope) error {
			fn, err := e.CreateFunction(s, "thrower", thrower)
			if err != nil {
				return err
			}
			_, err = e.CallFunction(s, env.Value{}, fn)
			if err == nil {
				t.Fatal("throwing call reported success")
			}
			if status.CodeOf(err) != status.PendingException {
				t.Fatalf("call error: got %v, want PendingException", err)
			}
			_, ok, err := e.ClearPending(s)
			if err != nil {
				return err
			}
			if !ok {
				t.Fatal("exception not left pending for the caller")
			}
			return nil
		})
	})
	if err != nil {
		t.Fatalf("WithEnv: %v", err)
	}
}

func TestCreateInOuterScopeRejected(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	err := h.WithEnv(func(e *env.Env) error {
		outer := e.Scope()
		return e.InScope(func(inner *env.Scope) error {
			_, err := e.Undefined(outer)
			if err == nil {
				t.Fatal("creation into a non-innermost scope succeeded")
			}
			if !errors.As(err, new(*status.Error)) {
				t.Fatalf("unexpected error type: %T", err)
			}
			if _, err := e.Undefined(inner); err != nil {
				t.Fatalf("creation into innermost scope: %v", err)
			}
			return nil
		})
	})
	if err != nil {
		t.Fatalf("WithEnv: %v", err)
	}
}

func TestAddCleanup_RunsAtClose(t *testing.T) {
	h := fakehost.New()

	ran := false
	err := h.WithEnv(func(e *env.Env) error {
		return e.AddCleanup(func() { ran = true })
	})
	if err != nil {
		t.Fatalf("WithEnv: %v", err)
	}

	h.Close()
	if !ran {
		t.Fatal("cleanup hook did not run at close")
	}
}
