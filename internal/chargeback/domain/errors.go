package domain

import "errors"

var (
	ErrNotFound             = errors.New("chargeback_not_found")
	ErrUnsupportedCategory  = errors.New("unsupported_category")
	ErrUnsupportedStage     = errors.New("unsupported_stage")
	ErrUnsupportedStatus    = errors.New("unsupported_status")
	ErrUnsupportedOperation = errors.New("unsupported_operation")
	ErrRemoteFailure        = errors.New("remote_failure")
	ErrInvalidEvent         = errors.New("invalid_event")
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidFilter        = errors.New("invalid_filter")
)

// IsUnsupported reports whether err rejects the event's shape or content.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedCategory) ||
		errors.Is(err, ErrUnsupportedStage) ||
		errors.Is(err, ErrUnsupportedStatus) ||
		errors.Is(err, ErrUnsupportedOperation)
}
