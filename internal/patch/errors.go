package patch

import (
	"errors"
	"fmt"

	"github.com/haasonsaas/sidekick/pkg/models"
)

// Error is a patch failure with a stable code. All non-E_IO failures leave
// the target file unchanged.
type Error struct {
	Code    models.ErrorCode
	Message string
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

func failf(code models.ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the error code, defaulting to E_IO for plain errors.
func CodeOf(err error) models.ErrorCode {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return models.CodeIO
}
