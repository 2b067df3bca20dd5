package chat

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrContent    = errors.New("content error")
	ErrStorage    = errors.New("storage error")
	ErrMembership = errors.New("membership resolution error")
	ErrDelivery   = errors.New("delivery error")
	ErrNotFound   = errors.New("not found")
	ErrState      = errors.New("session state error")
)

// ErrorKind maps an error onto the kind reported to clients in error frames.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrContent):
		return "content"
	case errors.Is(err, ErrStorage):
		return "storage"
	case errors.Is(err, ErrState):
		return "state"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
