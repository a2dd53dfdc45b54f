package response

// TransactionStatus is the coarse processor status; status_detail
// refines it into a concrete outcome or required next step.
type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "pending"
	TransactionStatusSuccess TransactionStatus = "success"
	TransactionStatusFailure TransactionStatus = "failure"
)

const CardStatusValid = "valid"

type Transaction struct {
	Id           string            `json:"id,omitempty"`
	Status       TransactionStatus `json:"status,omitempty"`
	StatusDetail int               `json:"status_detail"`
}

type Card struct {
	Status               string `json:"status,omitempty"`
	Token                string `json:"token,omitempty"`
	TransactionReference string `json:"transaction_reference,omitempty"`
	Bin                  string `json:"bin,omitempty"`
	Number               string `json:"number,omitempty"`
	Type                 string `json:"type,omitempty"`
}

type BrowserResponse struct {
	// challenge_request carries the html document the host must render
	// for a 3DS2 browser challenge.
	ChallengeRequest string `json:"challenge_request,omitempty"`
}

type ThreeDS struct {
	BrowserResponse *BrowserResponse `json:"browser_response,omitempty"`
}

type AddCard struct {
	Transaction *Transaction `json:"transaction,omitempty"`
	Card        *Card        `json:"card,omitempty"`
	ThreeDS     *ThreeDS     `json:"3ds,omitempty"`
}

func (a *AddCard) IsValid() bool {
	return a.Transaction != nil && a.Card != nil
}

// ChallengeRequest returns the 3DS challenge document, if any.
func (a *AddCard) ChallengeRequest() string {
	if a.ThreeDS == nil || a.ThreeDS.BrowserResponse == nil {
		return ""
	}
	return a.ThreeDS.BrowserResponse.ChallengeRequest
}
