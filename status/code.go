package status

// Code is a raw status value crossing the host boundary ABI.
//
// Values are part of the wire contract with guest addons and must never be
// reordered; new codes are appended only.
type Code int32

const (
	OK Code = iota
	InvalidArg
	ObjectExpected
	StringExpected
	NumberExpected
	BooleanExpected
	FunctionExpected
	ArrayExpected
	BufferExpected
	BigIntExpected
	GenericFailure
	PendingException
	Cancelled
	EscapeCalledTwice
	HandleScopeMismatch
	CallbackScopeMismatch
	QueueFull
	Closing
)

var codeNames = map[Code]string{
	OK:                    "ok",
	InvalidArg:            "invalid_arg",
	ObjectExpected:        "object_expected",
	StringExpected:        "string_expected",
	NumberExpected:        "number_expected",
	BooleanExpected:       "boolean_expected",
	FunctionExpected:      "function_expected",
	ArrayExpected:         "array_expected",
	BufferExpected:        "buffer_expected",
	BigIntExpected:        "bigint_expected",
	GenericFailure:        "generic_failure",
	PendingException:      "pending_exception",
	Cancelled:             "cancelled",
	EscapeCalledTwice:     "escape_called_twice",
	HandleScopeMismatch:   "handle_scope_mismatch",
	CallbackScopeMismatch: "callback_scope_mismatch",
	QueueFull:             "queue_full",
	Closing:               "closing",
}

// String returns the stable snake_case name of the code.
func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "unknown_status"
}

// Translate converts a raw boundary code into an error. OK translates to nil.
//
// Translate reads nothing but the code itself: a PendingException result is
// reported exactly like any other failure, and clearing the underlying host
// exception remains a separate, explicit environment operation.
func Translate(c Code) error {
	if c == OK {
		return nil
	}
	return &Error{Phase: PhaseHost, Code: c}
}

// TranslateAt is Translate with the observing layer and a detail message.
func TranslateAt(c Code, phase Phase, detail string) error {
	if c == OK {
		return nil
	}
	return &Error{Phase: phase, Code: c, Detail: detail}
}

// CodeOf extracts the boundary code carried by err. A nil error maps to OK;
// an error chain without an *Error maps to GenericFailure.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	for e := err; e != nil; {
		if se, ok := e.(*Error); ok {
			return se.Code
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return GenericFailure
}
