// Package response holds the JSON bodies returned by the HTTP API.
package response

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details []validationError `json:"details,omitempty"`
}

// MessageResponse is the body of requests that succeed without returning data.
type MessageResponse struct {
	Message string `json:"message"`
}

var (
	URLNotFoundResponse         = ErrorResponse{Error: "URL not found"}
	FailedToShortenResponse     = ErrorResponse{Error: "Failed to shorten URL"}
	FailedToDeleteResponse      = ErrorResponse{Error: "Failed to delete URL"}
	UnsupportedProviderResponse = ErrorResponse{Error: "unsupported provider"}
	InvalidStateResponse        = ErrorResponse{Error: "invalid oauth state"}
	AuthFailedResponse          = ErrorResponse{Error: "authentication failed"}
	ServerErrorResponse         = ErrorResponse{Error: "An internal server error occurred. Please try again later."}

	URLDeletedResponse = MessageResponse{Message: "URL successfully deleted"}
)

type validationError struct {
	Field string `json:"field"`
	Value any    `json:"value"`
	Issue string `json:"issue"`
}

func issueForTag(tag string) string {
	switch tag {
	case "required":
		return "This field is required."
	case "url":
		return "Invalid url."
	default:
		return "Invalid value."
	}
}

func getValidationErrors(err error) []validationError {
	var validationErrs []validationError

	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		for _, e := range errs {
			validationErrs = append(validationErrs, validationError{
				Field: e.Field(),
				Value: e.Value(),
				Issue: issueForTag(e.Tag()),
			})
		}
	}

	return validationErrs
}

// ValidationErrorResponse describes every failed rule of a validator error.
func ValidationErrorResponse(err error) ErrorResponse {
	return ErrorResponse{
		Error:   "Validation Error",
		Details: getValidationErrors(err),
	}
}
