package valuetype

// ErrorKind is the typed error taxonomy from §7. RPC handlers never
// leak Go error strings across the wire — they map to one of these.
type ErrorKind string

const (
	NoError                     ErrorKind = "NoError"
	InvalidParameter            ErrorKind = "InvalidParameter"
	MissingParameter            ErrorKind = "MissingParameter"
	DuplicateID                 ErrorKind = "DuplicateId"
	NotFound                    ErrorKind = "NotFound"
	InvalidRuleFormat           ErrorKind = "InvalidRuleFormat"
	InvalidStateEvaluatorValue  ErrorKind = "InvalidStateEvaluatorValue"
	InvalidTimeDescriptor       ErrorKind = "InvalidTimeDescriptor"
	InvalidTimeEventItem        ErrorKind = "InvalidTimeEventItem"
	InvalidCalendarItem         ErrorKind = "InvalidCalendarItem"
	InvalidRepeatingOption      ErrorKind = "InvalidRepeatingOption"
	TypesNotMatching            ErrorKind = "TypesNotMatching"
	NotExecutable               ErrorKind = "NotExecutable"
	NoExitActions                ErrorKind = "NoExitActions"
	ContainsEventBasedAction     ErrorKind = "ContainsEventBasedAction"
	BackendError                ErrorKind = "BackendError"
	BadPassword                 ErrorKind = "BadPassword"
	InvalidUserID                ErrorKind = "InvalidUserId"
	Unauthorized                 ErrorKind = "Unauthorized"
	PermissionDenied             ErrorKind = "PermissionDenied"
)

// TypedError pairs an ErrorKind with a diagnostic message. It satisfies
// the error interface; callers (and the RPC layer) branch on Kind, never
// on Error()'s text, which is for logs/diagnostics only.
type TypedError struct {
	Kind ErrorKind
	Msg  string
}

func (e *TypedError) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Msg
}

// NewError builds a TypedError for the given kind and diagnostic text.
func NewError(kind ErrorKind, msg string) *TypedError {
	return &TypedError{Kind: kind, Msg: msg}
}

// KindOf extracts the ErrorKind from err, defaulting to BackendError for
// any error that isn't one of our typed errors (so an unexpected I/O
// failure never leaks raw driver text across the RPC boundary).
func KindOf(err error) ErrorKind {
	if err == nil {
		return NoError
	}
	if te, ok := err.(*TypedError); ok {
		return te.Kind
	}
	return BackendError
}
