package nuvei

import "fmt"

// VerifyType selects which authentication step a verify call performs.
type VerifyType string

const (
	VerifyTypeByOtp                  VerifyType = "BY_OTP"
	VerifyTypeAuthenticationContinue VerifyType = "AUTHENTICATION_CONTINUE"
	VerifyTypeByCres                 VerifyType = "BY_CRES"
)

type User struct {
	Id    string `json:"id"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type CardData struct {
	Number      string `json:"number"`
	HolderName  string `json:"holder_name"`
	ExpiryMonth int    `json:"expiry_month"`
	ExpiryYear  int    `json:"expiry_year"`
	Cvc         string `json:"cvc"`
	Type        string `json:"type,omitempty"`
}

// ThreeDS2Data carries the return url the challenge service posts the
// challenge response to; the url embeds the challenge reference id.
type ThreeDS2Data struct {
	TermUrl    string `json:"term_url"`
	DeviceType string `json:"device_type"`
}

type BrowserInfo struct {
	AcceptHeader   string `json:"accept_header"`
	ColorDepth     int    `json:"color_depth"`
	JavaEnabled    bool   `json:"java_enabled"`
	Language       string `json:"language"`
	ScreenHeight   int    `json:"screen_height"`
	ScreenWidth    int    `json:"screen_width"`
	TimezoneOffset int    `json:"timezone_offset"`
	UserAgent      string `json:"user_agent"`
}

// DefaultBrowserInfo describes the embedding device when the host does
// not supply its own.
func DefaultBrowserInfo() BrowserInfo {
	return BrowserInfo{
		AcceptHeader:   "*/*",
		ColorDepth:     24,
		JavaEnabled:    false,
		Language:       "en-US",
		ScreenHeight:   1080,
		ScreenWidth:    1920,
		TimezoneOffset: 0,
		UserAgent:      "cardauth/1.0",
	}
}

type ExtraParams struct {
	ThreeDS2Data ThreeDS2Data `json:"threeDS2_data"`
	BrowserInfo  BrowserInfo  `json:"browser_info"`
}

type AddCardRequest struct {
	User        User        `json:"user"`
	Card        CardData    `json:"card"`
	ExtraParams ExtraParams `json:"extra_params"`
}

type transactionRef struct {
	Id string `json:"id"`
}

type userRef struct {
	Id string `json:"id"`
}

type VerifyRequest struct {
	UserId        string
	TransactionId string
	Type          VerifyType
	Value         string
	MoreInfo      bool
}

func (r VerifyRequest) String() string {
	return fmt.Sprintf("VerifyRequest {type: %v, transaction: %v, user: %v}", r.Type, r.TransactionId, r.UserId)
}

type verifyWireRequest struct {
	User        userRef        `json:"user"`
	Transaction transactionRef `json:"transaction"`
	Value       string         `json:"value"`
	Type        VerifyType     `json:"type"`
	MoreInfo    bool           `json:"more_info"`
}
