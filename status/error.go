package status

import (
	"fmt"
	"strings"
)

// Phase indicates which layer produced or observed the error
type Phase string

const (
	PhaseCall    Phase = "call"    // environment entry and callback dispatch
	PhaseScope   Phase = "scope"   // handle scope open/close/escape
	PhaseRef     Phase = "ref"     // reference registry
	PhaseMarshal Phase = "marshal" // Go to host value conversion and back
	PhaseQueue   Phase = "queue"   // threadsafe call queue
	PhaseAsync   Phase = "async"   // background work bridge
	PhaseModule  Phase = "module"  // addon registration
	PhaseHost    Phase = "host"    // raw boundary operations
	PhaseLoad    Phase = "load"    // guest addon loading
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Code     Code
	GoType   string
	HostKind string
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(e.Code.String())

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.HostKind != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.HostKind != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", host kind ")
			b.WriteString(e.HostKind)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("host kind ")
			b.WriteString(e.HostKind)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.HostKind != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. Codes must match; the phase
// is compared only when the target sets one.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		if e.Code != t.Code {
			return false
		}
		return t.Phase == "" || e.Phase == t.Phase
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, code Code) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Code:  code,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// HostKind sets the host value kind name
func (b *Builder) HostKind(k string) *Builder {
	b.err.HostKind = k
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Expected creates a value-kind mismatch error for the marshaling layer.
// The code selects which host kind was required (StringExpected,
// ObjectExpected, ...).
func Expected(code Code, path []string, goType, hostKind string) *Error {
	return &Error{
		Phase:    PhaseMarshal,
		Code:     code,
		Path:     path,
		GoType:   goType,
		HostKind: hostKind,
	}
}

// Overflow creates an error for a numeric value the host cannot represent
// exactly
func Overflow(path []string, value any, targetType string) *Error {
	return &Error{
		Phase:  PhaseMarshal,
		Code:   InvalidArg,
		Path:   path,
		Detail: fmt.Sprintf("value %v cannot be represented exactly as %s", value, targetType),
		Value:  value,
	}
}

// NilPointer creates an error for a nil value in a non-nullable position
func NilPointer(path []string, goType string) *Error {
	return &Error{
		Phase:  PhaseMarshal,
		Code:   InvalidArg,
		Path:   path,
		GoType: goType,
		Detail: "nil pointer",
	}
}

// Unsupported creates an error for an operation the host did not advertise
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Code:   GenericFailure,
		Detail: what,
	}
}

// RefReleased creates an error for using a reference after its consuming
// release
func RefReleased() *Error {
	return &Error{
		Phase:  PhaseRef,
		Code:   InvalidArg,
		Detail: "reference already released",
	}
}

// QueueSaturated creates the non-blocking backpressure error for a bounded
// call queue
func QueueSaturated(name string) *Error {
	return &Error{
		Phase:  PhaseQueue,
		Code:   QueueFull,
		Detail: fmt.Sprintf("call queue %q is full", name),
	}
}

// QueueClosed creates an error for calling into a queue past its open state
func QueueClosed(name string) *Error {
	return &Error{
		Phase:  PhaseQueue,
		Code:   Closing,
		Detail: fmt.Sprintf("call queue %q is closing", name),
	}
}

// WorkCancelled creates the completion error for work cancelled before it ran
func WorkCancelled() *Error {
	return &Error{
		Phase:  PhaseAsync,
		Code:   Cancelled,
		Detail: "work cancelled before execution",
	}
}

// WorkStarted creates an error for cancelling work that already began
func WorkStarted() *Error {
	return &Error{
		Phase:  PhaseAsync,
		Code:   GenericFailure,
		Detail: "work already executing",
	}
}

// WorkPanicked wraps a recovered panic from a background work callback
func WorkPanicked(v any) *Error {
	return &Error{
		Phase:  PhaseAsync,
		Code:   GenericFailure,
		Detail: fmt.Sprintf("work panicked: %v", v),
		Value:  v,
	}
}

// Registration creates an addon export registration error
func Registration(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseModule,
		Code:   GenericFailure,
		Detail: fmt.Sprintf("register export %q", name),
		Cause:  cause,
	}
}

// Load creates a guest addon loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Code:   GenericFailure,
		Detail: detail,
		Cause:  cause,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Code:   InvalidArg,
		Detail: detail,
	}
}

// Wrap wraps an existing error with boundary context
func Wrap(phase Phase, code Code, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Code:   code,
		Detail: detail,
		Cause:  cause,
	}
}
