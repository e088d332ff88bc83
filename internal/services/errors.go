package services

import (
	"errors"
	"fmt"
)

// ErrValidation marks rejected input: empty prompt, unknown status values,
// missing approver. Wrap with a detail message via validationErr.
var ErrValidation = errors.New("validation error")

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
