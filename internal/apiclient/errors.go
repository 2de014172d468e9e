package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	GenericErrorMessage = "An error occurred"
	NetworkErrorMessage = "Unable to reach the server"

	CodeValidation      = "VALIDATION_ERROR"
	CodeNetwork         = "NETWORK_ERROR"
	CodeInvalidResponse = "INVALID_RESPONSE"
)

type ErrorKind int

const (
	// KindValidation is a client-side precondition failure; no request was sent.
	KindValidation ErrorKind = iota
	// KindUnauthorized is a 401 from the backend.
	KindUnauthorized
	// KindDomain is any other 4xx with a message meant for the user.
	KindDomain
	// KindTransport covers network failures, 5xx and unreadable bodies.
	KindTransport
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindDomain:
		return "domain"
	default:
		return "transport"
	}
}

// APIError is the only error type operations return for backend failures.
type APIError struct {
	Message string
	Status  int
	Code    string
	Err     error
}

func (e *APIError) Error() string {
	switch {
	case e.Status == 0 && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Code != "":
		return fmt.Sprintf("%s (status %d, code %s)", e.Message, e.Status, e.Code)
	case e.Status != 0:
		return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	default:
		return e.Message
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func (e *APIError) Kind() ErrorKind {
	switch {
	case e.Status == 0 && e.Code == CodeValidation:
		return KindValidation
	case e.Status == http.StatusUnauthorized:
		return KindUnauthorized
	case e.Status >= 400 && e.Status < 500:
		return KindDomain
	default:
		return KindTransport
	}
}

func NewValidationError(message string) *APIError {
	return &APIError{Message: message, Code: CodeValidation}
}

// AsAPIError unwraps err to an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func IsUnauthorized(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Kind() == KindUnauthorized
}

// UserMessage is the text a UI may show for err. Transport failures and
// anything unexpected collapse to a generic message.
func UserMessage(err error) string {
	apiErr, ok := AsAPIError(err)
	if !ok {
		return GenericErrorMessage
	}
	if apiErr.Kind() == KindTransport {
		if apiErr.Code == CodeNetwork {
			return NetworkErrorMessage
		}
		return GenericErrorMessage
	}
	if apiErr.Message == "" {
		return GenericErrorMessage
	}
	return apiErr.Message
}
