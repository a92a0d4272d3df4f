package addon_test

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/addon"
	"github.com/wippyai/addon-bridge/env"
	"github.com/wippyai/addon-bridge/fakehost"
)

func TestRegisterFunc_CallThroughHost(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	r := addon.NewRegistry()
	err := r.RegisterFunc("add", func(e *env.Env, a, b float64) (float64, error) {
		return a + b, nil
	})
	if err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	if err := h.LoadAddon(r); err != nil {
		t.Fatalf("LoadAddon: %v", err)
	}

	got, err := h.CallExport("add", 2, 3)
	if err != nil {
		t.Fatalf("CallExport: %v", err)
	}
	if got != float64(5) {
		t.Fatalf("add(2, 3): got %v", got)
	}

	if _, err := h.CallExport("missing"); err == nil {
		t.Fatal("unknown export callable")
	}
}

func TestRegisterFunc_RejectsBadShapes(t *testing.T) {
	cases := []struct {
		name string
		fn   any
	}{
		{"not a function", 42},
		{"nil function", (func(*env.Env))(nil)},
		{"no env parameter", func() {}},
		{"wrong first parameter", func(n int) int { return n }},
		{"variadic", func(e *env.Env, ns ...int) {}},
		{"error first", func(e *env.Env) (error, int) { return nil, 0 }},
		{"second result not error", func(e *env.Env) (int, int) { return 0, 0 }},
		{"three results", func(e *env.Env) (int, int, error) { return 0, 0, nil }},
	}
	for _, tc := range cases {
		r := addon.NewRegistry()
		if err := r.RegisterFunc("x", tc.fn); err == nil {
			t.Fatalf("%s: registered", tc.name)
		}
	}
}

func TestRegistry_DuplicateName(t *testing.T) {
	r := addon.NewRegistry()
	if err := r.RegisterValue("version", 1); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := r.RegisterValue("version", 2)
	if err == nil {
		t.Fatal("duplicate name registered")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("duplicate error: %v", err)
	}
}

func TestRegistry_NamesAndArity(t *testing.T) {
	r := addon.NewRegistry()
	if err := r.RegisterFunc("add", func(e *env.Env, a, b float64) float64 { return a + b }); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	if err := r.RegisterValue("version", "1.2.3"); err != nil {
		t.Fatalf("RegisterValue: %v", err)
	}
	if err := r.RegisterCallback("raw", func(abi.EnvHandle, *abi.CallInfo) abi.ValueHandle { return abi.None }, 1); err != nil {
		t.Fatalf("RegisterCallback: %v", err)
	}

	if got, want := r.Names(), []string{"add", "version", "raw"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Names: got %v, want %v", got, want)
	}
	if got := r.Arity("add"); got != 2 {
		t.Fatalf("Arity(add): got %d", got)
	}
	if got := r.Arity("raw"); got != 1 {
		t.Fatalf("Arity(raw): got %d", got)
	}
	if got := r.Arity("version"); got != -1 {
		t.Fatalf("Arity(version): got %d", got)
	}
	if got := r.Arity("missing"); got != -1 {
		t.Fatalf("Arity(missing): got %d", got)
	}
}

type statusAddon struct {
	calls int
}

func (a *statusAddon) GetHTTPStatus(e *env.Env) int {
	a.calls++
	return 200
}

func (a *statusAddon) Describe(e *env.Env, code float64) (string, error) {
	if code != 200 {
		return "", fmt.Errorf("unknown code %v", code)
	}
	return "OK", nil
}

// FormatLine has no *env.Env parameter, so the sweep must skip it.
func (a *statusAddon) FormatLine(code int) string {
	return fmt.Sprintf("status %d", code)
}

func TestRegisterAddon_MethodSweep(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	r := addon.NewRegistry()
	if err := r.RegisterAddon(&statusAddon{}); err != nil {
		t.Fatalf("RegisterAddon: %v", err)
	}

	// Alphabetical method order, lowerCamel names, helper skipped.
	if got, want := r.Names(), []string{"describe", "getHttpStatus"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Names: got %v, want %v", got, want)
	}

	if err := h.LoadAddon(r); err != nil {
		t.Fatalf("LoadAddon: %v", err)
	}
	got, err := h.CallExport("getHttpStatus")
	if err != nil {
		t.Fatalf("CallExport: %v", err)
	}
	if got != float64(200) {
		t.Fatalf("getHttpStatus: got %v", got)
	}
	if desc, err := h.CallExport("describe", 200); err != nil || desc != "OK" {
		t.Fatalf("describe(200): %v, %v", desc, err)
	}
}

type helperOnlyAddon struct{}

func (helperOnlyAddon) Format(n int) string { return fmt.Sprint(n) }

func TestRegisterAddon_NoExportableMethods(t *testing.T) {
	r := addon.NewRegistry()
	err := r.RegisterAddon(helperOnlyAddon{})
	if err == nil {
		t.Fatal("helper-only addon registered")
	}
	if !strings.Contains(err.Error(), "no exportable methods") {
		t.Fatalf("sweep error: %v", err)
	}
}

func TestExportError_BecomesThrow(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	r := addon.NewRegistry()
	err := r.RegisterFunc("fail", func(e *env.Env) (int, error) {
		return 0, errors.New("bad input")
	})
	if err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	if err := h.LoadAddon(r); err != nil {
		t.Fatalf("LoadAddon: %v", err)
	}

	_, err = h.CallExport("fail")
	if err == nil {
		t.Fatal("failing export reported success")
	}
	if !strings.Contains(err.Error(), "uncaught exception") || !strings.Contains(err.Error(), "bad input") {
		t.Fatalf("thrown error: %v", err)
	}
}

func TestExportPanic_BecomesThrow(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	r := addon.NewRegistry()
	err := r.RegisterFunc("boom", func(e *env.Env) int {
		panic("split brain")
	})
	if err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	if err := h.LoadAddon(r); err != nil {
		t.Fatalf("LoadAddon: %v", err)
	}

	_, err = h.CallExport("boom")
	if err == nil {
		t.Fatal("panicking export reported success")
	}
	if !strings.Contains(err.Error(), "panicked") || !strings.Contains(err.Error(), "split brain") {
		t.Fatalf("panic error: %v", err)
	}
}

func TestLoadUnloadHooks(t *testing.T) {
	h := fakehost.New()

	r := addon.NewRegistry()
	if err := r.RegisterValue("version", "1.0.0"); err != nil {
		t.Fatalf("RegisterValue: %v", err)
	}
	loaded := false
	unloaded := false
	r.OnLoad(func(e *env.Env) error {
		loaded = true
		return nil
	})
	r.OnUnload(func() { unloaded = true })

	if err := h.LoadAddon(r); err != nil {
		t.Fatalf("LoadAddon: %v", err)
	}
	if !loaded {
		t.Fatal("load hook did not run")
	}
	if unloaded {
		t.Fatal("unload hook ran before close")
	}

	h.Close()
	if !unloaded {
		t.Fatal("unload hook did not run at close")
	}
}

func TestLoadHookError_FailsLoad(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	r := addon.NewRegistry()
	if err := r.RegisterValue("version", "1.0.0"); err != nil {
		t.Fatalf("RegisterValue: %v", err)
	}
	r.OnLoad(func(e *env.Env) error { return errors.New("missing config") })

	err := h.LoadAddon(r)
	if err == nil {
		t.Fatal("failing load hook loaded anyway")
	}
	if !strings.Contains(err.Error(), "load hook failed") {
		t.Fatalf("load error: %v", err)
	}
}

func TestMissingArgs_DecodeAsUndefined(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	r := addon.NewRegistry()
	err := r.RegisterFunc("greet", func(e *env.Env, name *string) string {
		if name == nil {
			return "hello, anyone"
		}
		return "hello, " + *name
	})
	if err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	err = r.RegisterFunc("strict", func(e *env.Env, name string) string {
		return "hello, " + name
	})
	if err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	if err := h.LoadAddon(r); err != nil {
		t.Fatalf("LoadAddon: %v", err)
	}

	got, err := h.CallExport("greet", "ada")
	if err != nil || got != "hello, ada" {
		t.Fatalf("greet with arg: %v, %v", got, err)
	}
	got, err = h.CallExport("greet")
	if err != nil || got != "hello, anyone" {
		t.Fatalf("greet without arg: %v, %v", got, err)
	}

	// A non-pointer parameter cannot absorb undefined; the export throws.
	if _, err := h.CallExport("strict"); err == nil {
		t.Fatal("strict export accepted a missing argument")
	}
}
