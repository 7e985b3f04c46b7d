package apperror

import "errors"

// Error codes shared by every component.
const (
	CodeConfiguration = "configuration_error"
	CodeSourceLoad    = "source_load_error"
	CodeIndexMissing  = "index_missing"
	CodeUpstream      = "upstream_failure"
	CodeInvalidInput  = "invalid_input"
	CodeQuizInactive  = "quiz_inactive"
)

// AppError encodes domain specific error details.
type AppError struct {
	Code    string
	Message string
	// Collaborator names the external dependency that failed, set for upstream failures only.
	Collaborator string
	Err          error
}

func (e *AppError) Error() string {
	msg := e.Message
	if e.Collaborator != "" {
		msg = e.Collaborator + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Wrap produces a new AppError instance.
func Wrap(code, message string, err error) error {
	return &AppError{Code: code, Message: message, Err: err}
}

// Upstream reports a failed call to an external collaborator (embedding model, chat model, scorer).
func Upstream(collaborator string, err error) error {
	return &AppError{
		Code:         CodeUpstream,
		Message:      "upstream call failed",
		Collaborator: collaborator,
		Err:          err,
	}
}

// IsCode helps callers differentiate failures.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CollaboratorOf returns the collaborator recorded on an upstream failure.
func CollaboratorOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Collaborator
	}
	return ""
}
