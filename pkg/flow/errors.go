package flow

import (
	"errors"
	"fmt"

	"paygate/cardauth/pkg/cres"
	"paygate/cardauth/pkg/nuvei"
)

// ErrBusy is returned when a submission is attempted while another one
// is still in flight. Callers must honor the busy flag.
var ErrBusy = errors.New("a submission is already in flight")

type ErrorType string

const (
	ErrorTypeInvalidInput       ErrorType = "invalid_input"
	ErrorTypeNotInitialized     ErrorType = "not_initialized"
	ErrorTypeTransport          ErrorType = "transport_error"
	ErrorTypeApi                ErrorType = "api_error"
	ErrorTypeUnexpectedStatus   ErrorType = "unexpected_status"
	ErrorTypeMissingTransaction ErrorType = "missing_transaction"
	ErrorTypeTimeout            ErrorType = "timeout"
)

type ErrorDetail struct {
	Type        ErrorType `json:"type"`
	Help        string    `json:"help"`
	Description string    `json:"description"`
}

// ErrorModel is the structured error shape delivered to the host
// through the OnError callback.
type ErrorModel struct {
	Err ErrorDetail `json:"error"`
}

func (e ErrorModel) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Type, e.Err.Description)
}

func newError(t ErrorType, description string) ErrorModel {
	return ErrorModel{Err: ErrorDetail{Type: t, Description: description}}
}

// classify maps collaborator errors onto the host-facing taxonomy.
func classify(err error) ErrorModel {
	var model ErrorModel
	if errors.As(err, &model) {
		return model
	}
	if errors.Is(err, nuvei.ErrNotInitialized) {
		return newError(ErrorTypeNotInitialized, err.Error())
	}
	if errors.Is(err, cres.ErrInvalidInput) {
		return newError(ErrorTypeInvalidInput, err.Error())
	}
	if apiErr, ok := nuvei.IsApiError(err); ok {
		return ErrorModel{Err: ErrorDetail{
			Type:        ErrorTypeApi,
			Help:        apiErr.Help,
			Description: apiErr.Description,
		}}
	}
	return newError(ErrorTypeTransport, err.Error())
}
