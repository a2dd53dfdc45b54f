package cres

import (
	"errors"
	"fmt"
)

// ErrInvalidInput marks a local precondition failure detected before
// any network call is made.
var ErrInvalidInput = errors.New("invalid input")

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"tokenType,omitempty"`
	ExpiresIn   int64  `json:"expiresIn,omitempty"`
	Name        string `json:"name,omitempty"`
}

func (l *LoginResponse) IsValid() bool {
	return l.AccessToken != ""
}

type ReferenceResponse struct {
	Status  bool   `json:"status"`
	Id      string `json:"id"`
	Message string `json:"message,omitempty"`
}

func (r *ReferenceResponse) IsValid() bool {
	return r.Id != ""
}

type ChallengeData struct {
	// Cres is present only once the cardholder has completed the
	// challenge out-of-band.
	Cres        string `json:"cres,omitempty"`
	TransStatus string `json:"transStatus,omitempty"`
}

type DataResponse struct {
	Data      ChallengeData `json:"data"`
	Confirmed bool          `json:"confirmed"`
}

func (d *DataResponse) String() string {
	return fmt.Sprintf("DataResponse {hasCres: %v, transStatus: %v, confirmed: %v}",
		d.Data.Cres != "", d.Data.TransStatus, d.Confirmed)
}
