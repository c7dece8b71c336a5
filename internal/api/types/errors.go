package types

import (
	"errors"

	appErr "github.com/calctree/engine/pkg/errors"
)

// FromAppError converts err into the API error body. Messages of AppErrors
// are meant for users; any other error is reported without its text.
func FromAppError(err error) *APIError {
	if err == nil {
		return nil
	}
	var e *appErr.AppError
	if errors.As(err, &e) {
		return &APIError{Code: string(e.Code), Message: e.Message}
	}
	return &APIError{Code: string(appErr.CodeUnknown), Message: "internal error"}
}
