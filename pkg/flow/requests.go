package flow

import (
	"fmt"
	"strings"

	"paygate/cardauth/pkg/nuvei"
)

type SubmitCardRequest struct {
	UserId    string `json:"user_id"`
	UserEmail string `json:"user_email,omitempty"`

	CardNumber string `json:"card_number"`
	HolderName string `json:"holder_name,omitempty"`
	// Expiry in MM/YY format
	Expiry string `json:"expiry"`
	Cvc    string `json:"cvc"`

	// RequireHolderName mirrors hosts that hide the name field
	RequireHolderName bool `json:"require_holder_name"`

	// BrowserInfo describes the embedding device; defaults are used
	// when nil
	BrowserInfo *nuvei.BrowserInfo `json:"browser_info,omitempty"`
}

func (r SubmitCardRequest) String() string {
	return fmt.Sprintf("SubmitCardRequest {user: %v, card: %v, expiry: %v}",
		r.UserId, maskCardNumber(r.CardNumber), r.Expiry)
}

func maskCardNumber(number string) string {
	n := strings.ReplaceAll(strings.TrimSpace(number), " ", "")
	if len(n) < 10 {
		return "****"
	}
	return n[:6] + strings.Repeat("*", len(n)-10) + n[len(n)-4:]
}
