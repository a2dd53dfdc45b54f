package flow

import "time"

// ChallengeSession is the CRES session acquired at the start of a
// submission. It is owned exclusively by the service instance handling
// that submission and is cleared on every terminal transition; it must
// never be shared across concurrent submissions.
type ChallengeSession struct {
	AccessToken string
	ReferenceId string
	CreatedAt   time.Time
}

// IsUsable reports whether the 3DS path can be completed.
func (s ChallengeSession) IsUsable() bool {
	return s.AccessToken != "" && s.ReferenceId != ""
}

// Snapshot is the host-visible state of one service instance.
type Snapshot struct {
	Busy           bool `json:"busy"`
	AwaitingOtp    bool `json:"awaiting_otp"`
	Awaiting3ds    bool `json:"awaiting_3ds"`
	OtpValid       bool `json:"otp_valid"`
	HasTransaction bool `json:"has_transaction"`
}
