package duty

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyActive is returned by Begin when the member is on duty
	ErrAlreadyActive = errors.New("member is already on duty")
	// ErrNotActive is returned when an operation needs an active entry
	ErrNotActive = errors.New("member is not on duty")
	// ErrInvalidShift rejects labels outside the known shifts
	ErrInvalidShift = errors.New("unknown shift")
	// ErrDenied means the platform refused to change the on-duty marker
	ErrDenied = errors.New("marker change denied")
	// ErrMemberNotFound means the member no longer resolves in the guild
	ErrMemberNotFound = errors.New("member not found")
)

// ConfigMissingError reports a required guild setting that is unset
type ConfigMissingError struct {
	Field string
}

func (e *ConfigMissingError) Error() string {
	return fmt.Sprintf("guild setting %s is not configured", e.Field)
}
