package flow

import "paygate/cardauth/pkg/nuvei/response"

// Callbacks is the capability set the orchestrator invokes on its
// embedder. Invocation contract per submission:
//
//   - OnLoading fires at every busy-state transition, any number of
//     times.
//   - OnSuccess fires exactly once, on a terminal accept or decline of
//     the tokenization itself.
//   - OnVerify fires on every OTP or 3DS verification response,
//     success or failure, possibly several times.
//   - OnChallenge fires when a 3DS2 challenge document must be
//     rendered to the cardholder.
//   - OnError fires on validation failures, missing preconditions and
//     unrecognized status codes, possibly several times.
type Callbacks interface {
	OnLoading(isLoading bool)
	OnSuccess(accepted bool, message string)
	OnVerify(resp *response.Verify)
	OnChallenge(challengeHtml string)
	OnError(err ErrorModel)
}

// CallbackFuncs adapts optional handler funcs to Callbacks; nil fields
// are skipped.
type CallbackFuncs struct {
	Loading   func(isLoading bool)
	Success   func(accepted bool, message string)
	Verify    func(resp *response.Verify)
	Challenge func(challengeHtml string)
	Error     func(err ErrorModel)
}

func (c CallbackFuncs) OnLoading(isLoading bool) {
	if c.Loading != nil {
		c.Loading(isLoading)
	}
}

func (c CallbackFuncs) OnSuccess(accepted bool, message string) {
	if c.Success != nil {
		c.Success(accepted, message)
	}
}

func (c CallbackFuncs) OnVerify(resp *response.Verify) {
	if c.Verify != nil {
		c.Verify(resp)
	}
}

func (c CallbackFuncs) OnChallenge(challengeHtml string) {
	if c.Challenge != nil {
		c.Challenge(challengeHtml)
	}
}

func (c CallbackFuncs) OnError(err ErrorModel) {
	if c.Error != nil {
		c.Error(err)
	}
}
