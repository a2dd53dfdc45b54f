package flow

// Processor status_detail codes. The coarse transaction status only
// says pending/success/failure; these refine it into the concrete
// outcome or the next authentication step required.
const (
	// approved or declined, final; card.status decides which
	StatusDetailFinal = 7
	// hard decline, no further step possible
	StatusDetailHardDecline = 9
	// on tokenization: otp required; on BY_OTP verify: code rejected
	StatusDetailOtpRequired = 31
	StatusDetailOtpValid    = 32
	// alternate success path observed for some issuers
	StatusDetailOtpAlternate = 33
	Status3dsMethodRequired  = 35
	Status3dsChallenge       = 36
)
