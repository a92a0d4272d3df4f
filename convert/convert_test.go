package convert_test

import (
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/wippyai/addon-bridge/abi"
	"github.com/wippyai/addon-bridge/convert"
	"github.com/wippyai/addon-bridge/env"
	"github.com/wippyai/addon-bridge/fakehost"
	"github.com/wippyai/addon-bridge/status"
)

// withEnv runs fn inside a fresh host environment and fails the test on any
// setup error.
func withEnv(t *testing.T, h *fakehost.Host, fn func(e *env.Env, s *env.Scope) error) {
	t.Helper()
	err := h.WithEnv(func(e *env.Env) error {
		return fn(e, e.Scope())
	})
	if err != nil {
		t.Fatalf("WithEnv: %v", err)
	}
}

func TestRoundTrip_Primitives(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	withEnv(t, h, func(e *env.Env, s *env.Scope) error {
		cases := []any{
			true,
			false,
			float64(3.5),
			int(42),
			int64(-7),
			uint32(1 << 30),
			"héllo wörld",
			"",
		}
		for _, in := range cases {
			v, err := convert.ToValue(e, s, in)
			if err != nil {
				t.Fatalf("ToValue(%v): %v", in, err)
			}
			out := reflect.New(reflect.TypeOf(in))
			if err := convert.FromValue(e, v, out.Interface()); err != nil {
				t.Fatalf("FromValue(%v): %v", in, err)
			}
			if got := out.Elem().Interface(); !reflect.DeepEqual(got, in) {
				t.Fatalf("round trip %v: got %v", in, got)
			}
		}
		return nil
	})
}

type Meta struct {
	Version int
}

type record struct {
	Name string `bridge:"name"`
	Meta
	Count   int
	Ratio   float64 `bridge:"ratio"`
	Tags    []string
	Attrs   map[string]int
	Payload []byte
	Next    *record
	Omit    string `bridge:"-"`
}

func TestRoundTrip_Struct(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	withEnv(t, h, func(e *env.Env, s *env.Scope) error {
		in := record{
			Name:    "alpha",
			Meta:    Meta{Version: 3},
			Count:   11,
			Ratio:   0.25,
			Tags:    []string{"x", "y"},
			Attrs:   map[string]int{"a": 1, "b": 2},
			Payload: []byte{0xde, 0xad},
			Next:    &record{Name: "beta", Tags: []string{}, Attrs: map[string]int{}, Payload: []byte{}},
		}
		v, err := convert.ToValue(e, s, in)
		if err != nil {
			t.Fatalf("ToValue: %v", err)
		}

		var out record
		if err := convert.FromValue(e, v, &out); err != nil {
			t.Fatalf("FromValue: %v", err)
		}
		if !reflect.DeepEqual(out, in) {
			t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", out, in)
		}

		// Tagged names are the wire names; Go names are not.
		var probe struct {
			Name  string
			Ratio float64
		}
		if err := convert.FromValue(e, v, &probe); err != nil {
			t.Fatalf("FromValue probe: %v", err)
		}
		if probe.Name != "alpha" || probe.Ratio != 0.25 {
			t.Fatalf("tagged fields: got %+v", probe)
		}
		return nil
	})
}

func TestInt64_BigIntBeyondSafeRange(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	withEnv(t, h, func(e *env.Env, s *env.Scope) error {
		for _, in := range []int64{1 << 60, -(1 << 60), math.MaxInt64, math.MinInt64} {
			v, err := convert.ToValue(e, s, in)
			if err != nil {
				t.Fatalf("ToValue(%d): %v", in, err)
			}
			k, err := v.Kind()
			if err != nil {
				return err
			}
			if k != abi.KindBigInt {
				t.Fatalf("ToValue(%d): kind %v, want bigint", in, k)
			}
			got, err := convert.AsInt64(e, v)
			if err != nil {
				t.Fatalf("AsInt64(%d): %v", in, err)
			}
			if got != in {
				t.Fatalf("AsInt64(%d): got %d", in, got)
			}
		}

		// Inside the safe range stays a plain number.
		v, err := convert.ToValue(e, s, int64(1<<53-1))
		if err != nil {
			return err
		}
		k, err := v.Kind()
		if err != nil {
			return err
		}
		if k != abi.KindNumber {
			t.Fatalf("safe integer kind: got %v, want number", k)
		}
		return nil
	})
}

func TestInt64_OverflowWithoutBigInt(t *testing.T) {
	h := fakehost.New(fakehost.WithCapabilities(0))
	defer h.Close()

	withEnv(t, h, func(e *env.Env, s *env.Scope) error {
		_, err := convert.ToValue(e, s, int64(1<<60))
		if err == nil {
			t.Fatal("oversized int64 marshaled without bigint support")
		}
		if status.CodeOf(err) != status.InvalidArg {
			t.Fatalf("overflow error: got %v", err)
		}
		if !strings.Contains(err.Error(), "cannot be represented exactly") {
			t.Fatalf("overflow detail missing: %v", err)
		}
		return nil
	})
}

func TestAsString_UnpairedSurrogate(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	withEnv(t, h, func(e *env.Env, s *env.Scope) error {
		raw, code := h.CreateStringUTF16(e.Raw(), []uint16{0xD800, 'a'})
		if code != status.OK {
			t.Fatalf("CreateStringUTF16: %v", code)
		}
		v, err := s.Adopt(raw)
		if err != nil {
			return err
		}
		got, err := convert.AsString(e, v)
		if err != nil {
			return err
		}
		if got != "�a" {
			t.Fatalf("unpaired surrogate: got %q, want %q", got, "�a")
		}
		return nil
	})
}

func TestBytes_CopyBothDirections(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	withEnv(t, h, func(e *env.Env, s *env.Scope) error {
		src := []byte{1, 2, 3}
		v, err := convert.ToValue(e, s, src)
		if err != nil {
			return err
		}
		src[0] = 9

		first, err := convert.AsBytes(e, v)
		if err != nil {
			return err
		}
		if first[0] != 1 {
			t.Fatalf("host buffer aliases the source slice: %v", first)
		}

		first[1] = 9
		second, err := convert.AsBytes(e, v)
		if err != nil {
			return err
		}
		if second[1] != 2 {
			t.Fatalf("read slice aliases the host buffer: %v", second)
		}
		return nil
	})
}

func TestExternalBytes_AliasesAndGuards(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	withEnv(t, h, func(e *env.Env, s *env.Scope) error {
		_, err := convert.ExternalBytes(e, s, []byte{1}, nil)
		if err == nil {
			t.Fatal("external buffer accepted without a finalizer")
		}
		if !strings.Contains(err.Error(), "finalizer") {
			t.Fatalf("nil finalizer error: %v", err)
		}

		data := []byte{1, 2, 3}
		v, err := convert.ExternalBytes(e, s, data, func() {})
		if err != nil {
			return err
		}
		data[0] = 9
		got, err := convert.AsBytes(e, v)
		if err != nil {
			return err
		}
		if got[0] != 9 {
			t.Fatalf("external buffer copied instead of aliasing: %v", got)
		}
		return nil
	})
}

func TestExternalBytes_RequiresCapability(t *testing.T) {
	h := fakehost.New(fakehost.WithCapabilities(abi.CapBigInt))
	defer h.Close()

	withEnv(t, h, func(e *env.Env, s *env.Scope) error {
		_, err := convert.ExternalBytes(e, s, []byte{1}, func() {})
		if err == nil {
			t.Fatal("external buffer accepted without host support")
		}
		if status.CodeOf(err) != status.GenericFailure {
			t.Fatalf("unsupported error: got %v", err)
		}
		return nil
	})
}

type nativeState struct {
	id int
}

func TestExternal_TokenRoundTrip(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	withEnv(t, h, func(e *env.Env, s *env.Scope) error {
		native := &nativeState{id: 7}
		v, err := convert.External(e, s, native, nil)
		if err != nil {
			return err
		}
		k, err := v.Kind()
		if err != nil {
			return err
		}
		if k != abi.KindExternal {
			t.Fatalf("external kind: got %v", k)
		}
		got, err := convert.AsExternal(e, v)
		if err != nil {
			return err
		}
		if got != native {
			t.Fatalf("external round trip: got %p, want %p", got, native)
		}
		return nil
	})
}

func TestExternal_FinalizerOnReclaim(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	runs := 0
	withEnv(t, h, func(e *env.Env, s *env.Scope) error {
		err := e.InScope(func(inner *env.Scope) error {
			_, err := convert.External(e, inner, &nativeState{id: 1}, func() { runs++ })
			return err
		})
		if err != nil {
			return err
		}
		h.GC()
		if runs != 1 {
			t.Fatalf("finalizer ran %d times after reclaim, want 1", runs)
		}
		h.GC()
		if runs != 1 {
			t.Fatalf("finalizer ran %d times after second GC, want 1", runs)
		}
		return nil
	})
}

func TestAsInt64_RejectsInexactNumbers(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	withEnv(t, h, func(e *env.Env, s *env.Scope) error {
		for _, f := range []float64{1.5, math.NaN(), math.Inf(1), math.Inf(-1)} {
			v, err := convert.ToValue(e, s, f)
			if err != nil {
				return err
			}
			if _, err := convert.AsInt64(e, v); err == nil {
				t.Fatalf("AsInt64(%v) succeeded", f)
			}
		}

		v, err := convert.ToValue(e, s, float64(1<<53))
		if err != nil {
			return err
		}
		_, err = convert.AsInt64(e, v)
		if err == nil {
			t.Fatal("AsInt64 accepted a number past the safe range")
		}
		if !strings.Contains(err.Error(), "cannot be represented exactly") {
			t.Fatalf("range error: %v", err)
		}
		return nil
	})
}

func TestFromValue_DynamicAny(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	withEnv(t, h, func(e *env.Env, s *env.Scope) error {
		v, err := convert.ToValue(e, s, map[string]any{
			"n":    1.0,
			"ok":   true,
			"name": "x",
			"list": []any{2.0, "y"},
			"gone": nil,
		})
		if err != nil {
			return err
		}
		var out any
		if err := convert.FromValue(e, v, &out); err != nil {
			return err
		}
		want := map[string]any{
			"n":    1.0,
			"ok":   true,
			"name": "x",
			"list": []any{2.0, "y"},
			"gone": nil,
		}
		if !reflect.DeepEqual(out, want) {
			t.Fatalf("dynamic decode:\n got %#v\nwant %#v", out, want)
		}
		return nil
	})
}

func TestFromValue_MissingFieldStaysZero(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	withEnv(t, h, func(e *env.Env, s *env.Scope) error {
		v, err := convert.ToValue(e, s, map[string]int{"count": 4})
		if err != nil {
			return err
		}
		out := struct {
			Count int
			Label string
		}{Label: "preset"}
		if err := convert.FromValue(e, v, &out); err != nil {
			return err
		}
		if out.Count != 4 {
			t.Fatalf("present field: got %d", out.Count)
		}
		if out.Label != "preset" {
			t.Fatalf("absent field overwritten: got %q", out.Label)
		}
		return nil
	})
}

func TestFromValue_FixedArrayLengthMismatch(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	withEnv(t, h, func(e *env.Env, s *env.Scope) error {
		v, err := convert.ToValue(e, s, []int{1, 2})
		if err != nil {
			return err
		}
		var out [3]int
		err = convert.FromValue(e, v, &out)
		if err == nil {
			t.Fatal("length mismatch accepted")
		}
		if !strings.Contains(err.Error(), "want 3") {
			t.Fatalf("length mismatch detail: %v", err)
		}
		return nil
	})
}

func TestFromValue_KindMismatchPath(t *testing.T) {
	h := fakehost.New()
	defer h.Close()

	withEnv(t, h, func(e *env.Env, s *env.Scope) error {
		v, err := convert.ToValue(e, s, map[string]any{"inner": map[string]any{"n": "oops"}})
		if err != nil {
			return err
		}
		var out struct {
			Inner struct{ N int }
		}
		err = convert.FromValue(e, v, &out)
		if err == nil {
			t.Fatal("kind mismatch accepted")
		}
		if status.CodeOf(err) != status.NumberExpected {
			t.Fatalf("mismatch code: got %v", err)
		}
		if !strings.Contains(err.Error(), "inner.n") {
			t.Fatalf("error path missing: %v", err)
		}
		return nil
	})
}
