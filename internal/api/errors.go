package api

import (
	"errors"
	"net/http"
	"sync"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/foldkeeper/foldkeeper/internal/errors"
)

// codeRateLimited has no domain counterpart; only the limiter middleware
// produces it.
const codeRateLimited = "RATE_LIMITED"

// codeByStatus names errors that huma raises itself, such as a malformed
// query parameter, so they carry the same codes as domain errors.
var codeByStatus = map[int]domainerrors.Code{
	http.StatusBadRequest:          domainerrors.CodeValidation,
	http.StatusUnprocessableEntity: domainerrors.CodeValidation,
	http.StatusNotFound:            domainerrors.CodeNotFound,
	http.StatusConflict:            domainerrors.CodeAlreadyExists,
	http.StatusServiceUnavailable:  domainerrors.CodeStoreUnavailable,
	http.StatusTooManyRequests:     codeRateLimited,
}

func statusToCode(status int) string {
	if c, ok := codeByStatus[status]; ok {
		return string(c)
	}
	return string(domainerrors.CodeInternal)
}

// APIError is the huma.StatusError every failed operation returns. The
// envelope transformer turns it into an APIErrorEnvelope.
type APIError struct { //nolint:revive // API prefix is intentional for clarity
	status  int
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Field errors or other detail"`
}

func (e *APIError) Error() string { return e.Message }

func (e *APIError) GetStatus() int { return e.status }

func (e *APIError) ContentType(string) string { return "application/json" }

var registerOnce sync.Once

// RegisterErrorHandler replaces huma.NewError so domain errors keep their
// code and details. huma.NewError is global; later calls do nothing.
func RegisterErrorHandler() {
	registerOnce.Do(func() { huma.NewError = newAPIError })
}

func newAPIError(status int, message string, errs ...error) huma.StatusError {
	var details []string
	for _, err := range errs {
		var de *domainerrors.Error
		if errors.As(err, &de) {
			return &APIError{
				status:  de.HTTPStatus(),
				Code:    string(de.Code),
				Message: de.Message,
				Details: de.Details,
			}
		}
		if err != nil {
			details = append(details, err.Error())
		}
	}

	e := &APIError{status: status, Code: statusToCode(status), Message: message}
	if len(details) > 0 {
		e.Details = details
	}
	return e
}

// toAPIError converts a handler error. Errors without a code become a 500
// that does not leak the underlying message.
func toAPIError(err error) error {
	var de *domainerrors.Error
	if errors.As(err, &de) {
		return huma.NewError(de.HTTPStatus(), de.Message, err)
	}
	return huma.NewError(http.StatusInternalServerError, "internal error")
}
