package nuvei

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned when an operation is attempted on a
// client constructed without processor credentials.
var ErrNotInitialized = errors.New("client not initialized with credentials")

// ApiError is a well-formed processor response carrying an error
// payload, or a non-success http status.
type ApiError struct {
	Type        string
	Help        string
	Description string
	StatusCode  int
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("api error [%s]: %s (status: %d)", e.Type, e.Description, e.StatusCode)
}

func IsApiError(err error) (*ApiError, bool) {
	var apiErr *ApiError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}

type apiErrorDetail struct {
	Type        string `json:"type"`
	Help        string `json:"help"`
	Description string `json:"description"`
}

type apiErrorPayload struct {
	Err *apiErrorDetail `json:"error"`
}
