package lineage

import (
	"errors"
	"fmt"

	appErr "github.com/calctree/engine/pkg/errors"
)

// Error categories. Every concrete failure below wraps exactly one of them,
// so callers may test either the category or the specific failure with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrArithmetic = errors.New("arithmetic error")
	ErrStorage    = errors.New("storage error")
)

var (
	ErrUnknownParent   = fmt.Errorf("%w: unknown parent", ErrValidation)
	ErrInvalidOperator = fmt.Errorf("%w: invalid operator", ErrValidation)
	ErrInvalidOperand  = fmt.Errorf("%w: invalid operand", ErrValidation)

	ErrDivideByZero    = fmt.Errorf("%w: divide by zero", ErrArithmetic)
	ErrNonFiniteResult = fmt.Errorf("%w: result is not a finite number", ErrArithmetic)

	ErrStorageUnavailable = fmt.Errorf("%w: unavailable", ErrStorage)
	ErrIntegrityViolation = fmt.Errorf("%w: integrity violation", ErrStorage)
)

// codeFor maps a lineage failure onto the application error code the API reports.
func codeFor(sentinel error) appErr.Code {
	switch {
	case errors.Is(sentinel, ErrUnknownParent):
		return appErr.CodeNotFound
	case errors.Is(sentinel, ErrValidation), errors.Is(sentinel, ErrArithmetic):
		return appErr.CodeInvalid
	case errors.Is(sentinel, ErrStorageUnavailable):
		return appErr.CodeUnavailable
	default:
		return appErr.CodeInternal
	}
}

// fail builds the typed failure returned by engine operations. The sentinel
// and the optional cause both stay reachable through errors.Is.
func fail(sentinel error, message string, cause error) *appErr.AppError {
	err := sentinel
	if cause != nil {
		err = fmt.Errorf("%w: %w", sentinel, cause)
	}
	return appErr.Wrap(err, codeFor(sentinel), message)
}

// storageFailure classifies an adapter error. Adapters report broken
// references with ErrIntegrityViolation; anything else counts as unavailable.
func storageFailure(err error, message string) *appErr.AppError {
	if errors.Is(err, ErrIntegrityViolation) {
		return fail(ErrIntegrityViolation, message, err)
	}
	return fail(ErrStorageUnavailable, message, err)
}

// ErrorKind names the failure for metrics labels and logs.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownParent):
		return "unknown_parent"
	case errors.Is(err, ErrInvalidOperator):
		return "invalid_operator"
	case errors.Is(err, ErrInvalidOperand):
		return "invalid_operand"
	case errors.Is(err, ErrDivideByZero):
		return "divide_by_zero"
	case errors.Is(err, ErrNonFiniteResult):
		return "non_finite_result"
	case errors.Is(err, ErrIntegrityViolation):
		return "integrity_violation"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "unknown"
	}
}
