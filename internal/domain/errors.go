package domain

import "errors"

// Kind classifies an Error for callers that need to map it (HTTP status,
// retry decisions).
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUnauthorized
	KindInsufficientFunds
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation error"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindInsufficientFunds:
		return "insufficient funds"
	case KindUpstream:
		return "upstream error"
	default:
		return "unknown error"
	}
}

// Error is the typed error surfaced by the booking and settlement core.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind. A target without a message
// (the Err* sentinels) matches every error of its kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
	ErrUpstream          = &Error{Kind: KindUpstream}
)

var (
	ErrSlotUnavailable   = &Error{Kind: KindConflict, Msg: "Selected time slot is not available"}
	ErrInvalidTransition = &Error{Kind: KindConflict, Msg: "transition not permitted from current state"}
	ErrNotSessionOwner   = &Error{Kind: KindUnauthorized, Msg: "Unauthorized"}
)

func Validation(msg string) error { return &Error{Kind: KindValidation, Msg: msg} }

func NotFound(resource string) error { return &Error{Kind: KindNotFound, Msg: resource + " not found"} }

func Conflict(msg string) error { return &Error{Kind: KindConflict, Msg: msg} }

func Unauthorized(msg string) error { return &Error{Kind: KindUnauthorized, Msg: msg} }

func InsufficientFunds(msg string) error {
	return &Error{Kind: KindInsufficientFunds, Msg: msg}
}

func Upstream(msg string, err error) error { return &Error{Kind: KindUpstream, Msg: msg, Err: err} }

// InvalidTransition reports a state machine rejection with the offending state.
func InvalidTransition(from, to string) error {
	return &Error{Kind: KindConflict, Msg: ErrInvalidTransition.Msg, Err: errors.New("cannot move from " + from + " to " + to)}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}
