package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"faq-rag/internal/apperror"
)

const indexMissingMessage = "the knowledge base has not been built yet; ask an administrator to create it"

// HTTPError captures the metadata required to serialize an error response consistently.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// NewHTTPError is a helper to build an HTTPError instance.
func NewHTTPError(status int, code, message string, err error) *HTTPError {
	return &HTTPError{Status: status, Code: code, Message: message, Err: err}
}

// fromAppError maps domain failures onto the status codes the API promises.
func fromAppError(err error) *HTTPError {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return NewHTTPError(http.StatusInternalServerError, "internal_error", "something went wrong", err)
	}

	switch appErr.Code {
	case apperror.CodeInvalidInput:
		return NewHTTPError(http.StatusBadRequest, appErr.Code, appErr.Message, err)
	case apperror.CodeQuizInactive:
		return NewHTTPError(http.StatusConflict, appErr.Code, "no quiz in progress; start a quiz first", err)
	case apperror.CodeIndexMissing:
		return NewHTTPError(http.StatusConflict, appErr.Code, indexMissingMessage, err)
	case apperror.CodeUpstream:
		msg := "an upstream service is unavailable, try again later"
		if appErr.Collaborator != "" {
			msg = "the " + appErr.Collaborator + " is unavailable, try again later"
		}
		return NewHTTPError(http.StatusServiceUnavailable, appErr.Code, msg, err)
	case apperror.CodeSourceLoad:
		return NewHTTPError(http.StatusUnprocessableEntity, appErr.Code, appErr.Error(), err)
	case apperror.CodeConfiguration:
		return NewHTTPError(http.StatusInternalServerError, appErr.Code, appErr.Error(), err)
	default:
		return NewHTTPError(http.StatusInternalServerError, "internal_error", "something went wrong", err)
	}
}

func asHTTPError(err error) *HTTPError {
	if err == nil {
		return nil
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	return fromAppError(err)
}

func abortWithError(c *gin.Context, err *HTTPError) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}
