package status

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:    PhaseMarshal,
				Code:     StringExpected,
				Path:     []string{"user", "address", "zip"},
				GoType:   "string",
				HostKind: "number",
				Detail:   "cannot decode",
			},
			contains: []string{"[marshal]", "string_expected", "user.address.zip", "string", "number", "cannot decode"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseScope,
				Code:  HandleScopeMismatch,
			},
			contains: []string{"[scope]", "handle_scope_mismatch"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseQueue,
				Code:   Closing,
				Detail: "queue torn down",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[queue]", "closing", "queue torn down", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestTranslate(t *testing.T) {
	if err := Translate(OK); err != nil {
		t.Fatalf("Translate(OK) = %v, want nil", err)
	}

	err := Translate(QueueFull)
	if err == nil {
		t.Fatal("Translate(QueueFull) = nil, want error")
	}
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("Translate returned %T, want *Error", err)
	}
	if se.Code != QueueFull {
		t.Errorf("Code = %v, want %v", se.Code, QueueFull)
	}
	if se.Phase != PhaseHost {
		t.Errorf("Phase = %v, want %v", se.Phase, PhaseHost)
	}
}

func TestTranslate_PendingExceptionSurvivesUnmodified(t *testing.T) {
	// The translator must report a pending exception like any other code;
	// it never consumes or rewrites it.
	err := Translate(PendingException)
	if CodeOf(err) != PendingException {
		t.Fatalf("CodeOf = %v, want PendingException", CodeOf(err))
	}
	again := Translate(CodeOf(err))
	if CodeOf(again) != PendingException {
		t.Fatalf("re-propagated code = %v, want PendingException", CodeOf(again))
	}
}

func TestTranslateAt(t *testing.T) {
	if err := TranslateAt(OK, PhaseScope, "x"); err != nil {
		t.Fatalf("TranslateAt(OK) = %v, want nil", err)
	}
	err := TranslateAt(EscapeCalledTwice, PhaseScope, "second escape")
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("TranslateAt returned %T, want *Error", err)
	}
	if se.Phase != PhaseScope || se.Code != EscapeCalledTwice || se.Detail != "second escape" {
		t.Errorf("unexpected error fields: %+v", se)
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, OK},
		{"structured", &Error{Code: Cancelled}, Cancelled},
		{"wrapped", Wrap(PhaseAsync, Cancelled, errors.New("x"), "y"), Cancelled},
		{"plain", errors.New("boom"), GenericFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseQueue,
		Code:  QueueFull,
		Path:  []string{"foo"},
	}

	// Same code, phase unset on target
	if !errors.Is(err, &Error{Code: QueueFull}) {
		t.Error("Is should match same code with unset phase")
	}

	// Same code and phase
	if !errors.Is(err, &Error{Phase: PhaseQueue, Code: QueueFull}) {
		t.Error("Is should match same phase and code")
	}

	// Different phase
	if errors.Is(err, &Error{Phase: PhaseAsync, Code: QueueFull}) {
		t.Error("Is should not match different phase")
	}

	// Different code
	if errors.Is(err, &Error{Phase: PhaseQueue, Code: Closing}) {
		t.Error("Is should not match different code")
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseHost,
		Code:  GenericFailure,
		Cause: cause,
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseMarshal, NumberExpected).
		Path("user", "age").
		GoType("int64").
		HostKind("string").
		Value(42).
		Cause(cause).
		Detail("expected %s, got %s", "number", "string").
		Build()

	if err.Phase != PhaseMarshal {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseMarshal)
	}
	if err.Code != NumberExpected {
		t.Errorf("Code = %v, want %v", err.Code, NumberExpected)
	}
	if len(err.Path) != 2 || err.Path[0] != "user" || err.Path[1] != "age" {
		t.Errorf("Path = %v, want [user age]", err.Path)
	}
	if err.GoType != "int64" {
		t.Errorf("GoType = %v, want 'int64'", err.GoType)
	}
	if err.HostKind != "string" {
		t.Errorf("HostKind = %v, want 'string'", err.HostKind)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected number, got string" {
		t.Errorf("Detail = %v", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("Expected", func(t *testing.T) {
		err := Expected(ObjectExpected, []string{"field"}, "map[string]int", "string")
		if err.Code != ObjectExpected {
			t.Errorf("Code = %v, want %v", err.Code, ObjectExpected)
		}
		if err.GoType != "map[string]int" || err.HostKind != "string" {
			t.Errorf("GoType=%v HostKind=%v", err.GoType, err.HostKind)
		}
	})

	t.Run("Overflow", func(t *testing.T) {
		err := Overflow([]string{"n"}, int64(1)<<62, "float64")
		if err.Code != InvalidArg {
			t.Errorf("Code = %v, want %v", err.Code, InvalidArg)
		}
		if !strings.Contains(err.Detail, "float64") {
			t.Errorf("Detail = %v, should name target type", err.Detail)
		}
	})

	t.Run("QueueSaturated", func(t *testing.T) {
		err := QueueSaturated("events")
		if err.Code != QueueFull {
			t.Errorf("Code = %v, want %v", err.Code, QueueFull)
		}
	})

	t.Run("QueueClosed", func(t *testing.T) {
		err := QueueClosed("events")
		if err.Code != Closing {
			t.Errorf("Code = %v, want %v", err.Code, Closing)
		}
	})

	t.Run("WorkCancelled", func(t *testing.T) {
		err := WorkCancelled()
		if err.Code != Cancelled {
			t.Errorf("Code = %v, want %v", err.Code, Cancelled)
		}
	})

	t.Run("WorkStarted", func(t *testing.T) {
		err := WorkStarted()
		if err.Code != GenericFailure {
			t.Errorf("Code = %v, want %v", err.Code, GenericFailure)
		}
	})

	t.Run("RefReleased", func(t *testing.T) {
		err := RefReleased()
		if err.Phase != PhaseRef || err.Code != InvalidArg {
			t.Errorf("Phase=%v Code=%v", err.Phase, err.Code)
		}
	})

	t.Run("WorkPanicked", func(t *testing.T) {
		err := WorkPanicked("boom")
		if err.Code != GenericFailure || !strings.Contains(err.Detail, "boom") {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestCode_String(t *testing.T) {
	if OK.String() != "ok" {
		t.Errorf("OK.String() = %q", OK.String())
	}
	if Code(9999).String() != "unknown_status" {
		t.Errorf("unknown code String() = %q", Code(9999).String())
	}
}
