package flow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paygate/cardauth/pkg/config"
	"paygate/cardauth/pkg/cres"
	"paygate/cardauth/pkg/nuvei"
	"paygate/cardauth/pkg/nuvei/response"
)

type successCall struct {
	accepted bool
	message  string
}

// recorder captures every callback invocation for assertions.
type recorder struct {
	mu         sync.Mutex
	loading    []bool
	successes  []successCall
	verifies   []*response.Verify
	challenges []string
	errs       []ErrorModel
}

func (r *recorder) OnLoading(isLoading bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loading = append(r.loading, isLoading)
}

func (r *recorder) OnSuccess(accepted bool, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes = append(r.successes, successCall{accepted: accepted, message: message})
}

func (r *recorder) OnVerify(resp *response.Verify) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifies = append(r.verifies, resp)
}

func (r *recorder) OnChallenge(challengeHtml string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.challenges = append(r.challenges, challengeHtml)
}

func (r *recorder) OnError(err ErrorModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) snapshot() (successes []successCall, verifies []*response.Verify, challenges []string, errs []ErrorModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]successCall{}, r.successes...),
		append([]*response.Verify{}, r.verifies...),
		append([]string{}, r.challenges...),
		append([]ErrorModel{}, r.errs...)
}

// fakeProcessor is a scriptable nuvei.Client.
type fakeProcessor struct {
	mu sync.Mutex

	addCardResp *response.AddCard
	addCardErr  error
	addCardGate chan struct{}
	addCards    []nuvei.AddCardRequest

	verifyFn func(req nuvei.VerifyRequest) (*response.Verify, error)
	verifies []nuvei.VerifyRequest
}

func (f *fakeProcessor) AddCard(_ context.Context, req nuvei.AddCardRequest) (*response.AddCard, error) {
	f.mu.Lock()
	f.addCards = append(f.addCards, req)
	gate := f.addCardGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if f.addCardErr != nil {
		return nil, f.addCardErr
	}
	return f.addCardResp, nil
}

func (f *fakeProcessor) Verify(_ context.Context, req nuvei.VerifyRequest) (*response.Verify, error) {
	f.mu.Lock()
	f.verifies = append(f.verifies, req)
	f.mu.Unlock()
	if f.verifyFn == nil {
		return nil, errors.New("no verify scripted")
	}
	return f.verifyFn(req)
}

func (f *fakeProcessor) verifyCalls() []nuvei.VerifyRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]nuvei.VerifyRequest{}, f.verifies...)
}

func (f *fakeProcessor) addCardCalls() []nuvei.AddCardRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]nuvei.AddCardRequest{}, f.addCards...)
}

func testConfig() config.Config {
	return config.Config{
		Environment:      config.EnvironmentTest,
		AppCode:          "ac",
		AppKey:           "ak",
		ServerCode:       "sc",
		ServerKey:        "sk",
		CresClientId:     "client-id",
		CresClientSecret: "client-secret",
		TermUrlTemplate:  "https://cres.example/api/cres/save/%s",
		PollInterval:     10 * time.Millisecond,
		ContinueDelay:    time.Millisecond,
		MaxContinues:     3,
		ContinueDeadline: 5 * time.Second,
		HttpTimeout:      time.Second,
	}
}

func validCardRequest() SubmitCardRequest {
	return SubmitCardRequest{
		UserId:            "user-1",
		CardNumber:        "4111 1111 1111 1111",
		HolderName:        "John Doe",
		Expiry:            "12/30",
		Cvc:               "123",
		RequireHolderName: true,
	}
}

func addCardResponse(detail int, cardStatus, trxRef, challengeHtml string) *response.AddCard {
	out := &response.AddCard{
		Transaction: &response.Transaction{
			Status:       response.TransactionStatusPending,
			StatusDetail: detail,
		},
		Card: &response.Card{
			Status:               cardStatus,
			TransactionReference: trxRef,
		},
	}
	if challengeHtml != "" {
		out.ThreeDS = &response.ThreeDS{
			BrowserResponse: &response.BrowserResponse{ChallengeRequest: challengeHtml},
		}
	}
	return out
}

func verifyResponse(status response.TransactionStatus, detail int, challengeHtml string) *response.Verify {
	out := &response.Verify{
		Transaction: &response.Transaction{
			Status:       status,
			StatusDetail: detail,
		},
	}
	if challengeHtml != "" {
		out.ThreeDS = &response.ThreeDS{
			BrowserResponse: &response.BrowserResponse{ChallengeRequest: challengeHtml},
		}
	}
	return out
}

func newTestService(processor *fakeProcessor, challenge *fakeChallengeClient) (Service, *recorder) {
	rec := &recorder{}
	return NewService(testConfig(), processor, challenge, rec), rec
}

func TestSubmitCard_RejectsInvalidCard(t *testing.T) {
	processor := &fakeProcessor{}
	svc, rec := newTestService(processor, &fakeChallengeClient{})

	req := validCardRequest()
	req.CardNumber = "4111111111111112"
	err := svc.SubmitCard(context.Background(), req)
	require.Error(t, err)

	_, _, _, errs := rec.snapshot()
	require.Len(t, errs, 1)
	assert.Equal(t, ErrorTypeInvalidInput, errs[0].Err.Type)
	assert.Empty(t, processor.addCardCalls(), "validation failure must not reach the network")
}

func TestSubmitCard_RejectsWhileBusy(t *testing.T) {
	gate := make(chan struct{})
	processor := &fakeProcessor{
		addCardResp: addCardResponse(StatusDetailFinal, response.CardStatusValid, "trx-1", ""),
		addCardGate: gate,
	}
	svc, _ := newTestService(processor, &fakeChallengeClient{})

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- svc.SubmitCard(context.Background(), validCardRequest())
	}()

	require.Eventually(t, func() bool {
		return svc.State().Busy
	}, time.Second, 5*time.Millisecond)

	err := svc.SubmitCard(context.Background(), validCardRequest())
	assert.ErrorIs(t, err, ErrBusy)

	close(gate)
	require.NoError(t, <-firstDone)
	assert.False(t, svc.State().Busy)
}

func TestSubmitCard_FinalApproved(t *testing.T) {
	processor := &fakeProcessor{
		addCardResp: addCardResponse(StatusDetailFinal, response.CardStatusValid, "trx-1", ""),
	}
	svc, rec := newTestService(processor, &fakeChallengeClient{})

	require.NoError(t, svc.SubmitCard(context.Background(), validCardRequest()))

	successes, _, _, errs := rec.snapshot()
	require.Len(t, successes, 1)
	assert.True(t, successes[0].accepted)
	assert.Equal(t, "Card Added Successfully", successes[0].message)
	assert.Empty(t, errs)

	state := svc.State()
	assert.False(t, state.Busy)
	assert.False(t, state.HasTransaction, "flow state must clear on terminal outcome")
}

func TestSubmitCard_FinalDeclined(t *testing.T) {
	processor := &fakeProcessor{
		addCardResp: addCardResponse(StatusDetailFinal, "review", "trx-1", ""),
	}
	svc, rec := newTestService(processor, &fakeChallengeClient{})

	require.NoError(t, svc.SubmitCard(context.Background(), validCardRequest()))

	successes, _, _, _ := rec.snapshot()
	require.Len(t, successes, 1)
	assert.False(t, successes[0].accepted)
	assert.Equal(t, "Card Status: review", successes[0].message)
	assert.False(t, svc.State().HasTransaction)
}

func TestSubmitCard_HardDeclineKeepsFlowState(t *testing.T) {
	processor := &fakeProcessor{
		addCardResp: addCardResponse(StatusDetailHardDecline, "rejected", "trx-1", ""),
	}
	svc, rec := newTestService(processor, &fakeChallengeClient{})

	require.NoError(t, svc.SubmitCard(context.Background(), validCardRequest()))

	successes, _, _, _ := rec.snapshot()
	require.Len(t, successes, 1)
	assert.False(t, successes[0].accepted)

	state := svc.State()
	assert.False(t, state.Busy)
	assert.True(t, state.HasTransaction, "hard decline only clears the busy flag")
}

func TestSubmitCard_UnrecognizedStatusDetail(t *testing.T) {
	processor := &fakeProcessor{
		addCardResp: addCardResponse(99, "", "trx-1", ""),
	}
	svc, rec := newTestService(processor, &fakeChallengeClient{})

	err := svc.SubmitCard(context.Background(), validCardRequest())
	require.Error(t, err)

	_, _, _, errs := rec.snapshot()
	require.Len(t, errs, 1)
	assert.Equal(t, ErrorTypeUnexpectedStatus, errs[0].Err.Type)
	assert.False(t, svc.State().Busy)
}

func TestSubmitCard_TermUrlEmbedsChallengeReference(t *testing.T) {
	processor := &fakeProcessor{
		addCardResp: addCardResponse(StatusDetailFinal, response.CardStatusValid, "trx-1", ""),
	}
	svc, _ := newTestService(processor, &fakeChallengeClient{})

	require.NoError(t, svc.SubmitCard(context.Background(), validCardRequest()))

	calls := processor.addCardCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "https://cres.example/api/cres/save/ref-1", calls[0].ExtraParams.ThreeDS2Data.TermUrl)
	assert.Equal(t, "vi", calls[0].Card.Type)
	assert.Equal(t, "4111111111111111", calls[0].Card.Number)
}

func TestOtpFlow_InvalidThenValid(t *testing.T) {
	processor := &fakeProcessor{
		addCardResp: addCardResponse(StatusDetailOtpRequired, "", "trx-1", ""),
	}
	attempts := 0
	processor.verifyFn = func(req nuvei.VerifyRequest) (*response.Verify, error) {
		require.Equal(t, nuvei.VerifyTypeByOtp, req.Type)
		require.Equal(t, "trx-1", req.TransactionId)
		attempts++
		if attempts == 1 {
			return verifyResponse(response.TransactionStatusPending, StatusDetailOtpRequired, ""), nil
		}
		return verifyResponse(response.TransactionStatusSuccess, StatusDetailOtpValid, ""), nil
	}
	svc, rec := newTestService(processor, &fakeChallengeClient{})

	require.NoError(t, svc.SubmitCard(context.Background(), validCardRequest()))
	state := svc.State()
	require.True(t, state.AwaitingOtp)
	require.False(t, state.Busy)
	require.True(t, state.HasTransaction)

	// wrong code: stays in the otp sub-flow, marked invalid
	require.NoError(t, svc.SubmitOtp(context.Background(), "000000"))
	state = svc.State()
	assert.True(t, state.AwaitingOtp)
	assert.False(t, state.OtpValid)
	assert.False(t, state.Busy)

	// right code: response delivered, everything cleared
	require.NoError(t, svc.SubmitOtp(context.Background(), "123456"))
	state = svc.State()
	assert.False(t, state.AwaitingOtp)
	assert.True(t, state.OtpValid)
	assert.False(t, state.HasTransaction)

	_, verifies, _, errs := rec.snapshot()
	require.Len(t, verifies, 1)
	assert.Equal(t, StatusDetailOtpValid, verifies[0].StatusDetail())
	assert.Empty(t, errs)
}

func TestOtpFlow_AlternateSuccessPath(t *testing.T) {
	processor := &fakeProcessor{
		addCardResp: addCardResponse(StatusDetailOtpRequired, "", "trx-1", ""),
		verifyFn: func(req nuvei.VerifyRequest) (*response.Verify, error) {
			return verifyResponse(response.TransactionStatusSuccess, StatusDetailOtpAlternate, ""), nil
		},
	}
	svc, rec := newTestService(processor, &fakeChallengeClient{})

	require.NoError(t, svc.SubmitCard(context.Background(), validCardRequest()))
	require.NoError(t, svc.SubmitOtp(context.Background(), "123456"))

	_, verifies, _, _ := rec.snapshot()
	require.Len(t, verifies, 1)
	assert.False(t, svc.State().HasTransaction)
}

func TestSubmitOtp_RequiresActiveSubFlow(t *testing.T) {
	svc, rec := newTestService(&fakeProcessor{}, &fakeChallengeClient{})

	err := svc.SubmitOtp(context.Background(), "123456")
	require.Error(t, err)
	_, _, _, errs := rec.snapshot()
	require.Len(t, errs, 1)
	assert.Equal(t, ErrorTypeInvalidInput, errs[0].Err.Type)
}

func TestThreeDs_ChallengePollConfirmVerify(t *testing.T) {
	release := make(chan struct{})
	challenge := &fakeChallengeClient{
		getDataFn: func(int) (*cres.DataResponse, error) {
			select {
			case <-release:
				return &cres.DataResponse{Data: cres.ChallengeData{Cres: "XYZ"}}, nil
			default:
				return &cres.DataResponse{}, nil
			}
		},
	}
	processor := &fakeProcessor{
		addCardResp: addCardResponse(Status3dsChallenge, "", "trx-1", "<html/>"),
		verifyFn: func(req nuvei.VerifyRequest) (*response.Verify, error) {
			require.Equal(t, nuvei.VerifyTypeByCres, req.Type)
			require.Equal(t, "XYZ", req.Value)
			require.Equal(t, "trx-1", req.TransactionId)
			return verifyResponse(response.TransactionStatusSuccess, StatusDetailOtpValid, ""), nil
		},
	}
	svc, rec := newTestService(processor, challenge)

	require.NoError(t, svc.SubmitCard(context.Background(), validCardRequest()))

	_, _, challenges, _ := rec.snapshot()
	require.Len(t, challenges, 1)
	assert.Equal(t, "<html/>", challenges[0])
	assert.False(t, svc.State().Busy, "busy must clear while the challenge is presented")
	assert.True(t, svc.State().Awaiting3ds)

	close(release)
	require.Eventually(t, func() bool {
		_, verifies, _, _ := rec.snapshot()
		return len(verifies) == 1
	}, 2*time.Second, 5*time.Millisecond, "cres verification never completed")

	_, confirm := challenge.calls()
	assert.Equal(t, 1, confirm)

	state := svc.State()
	assert.False(t, state.Awaiting3ds)
	assert.False(t, state.Busy)
	assert.False(t, state.HasTransaction, "state must clear after challenge validation")

	// value consumed exactly once
	time.Sleep(30 * time.Millisecond)
	_, verifies, _, errs := rec.snapshot()
	assert.Len(t, verifies, 1)
	assert.Empty(t, errs)
}

func TestThreeDs_ChallengeWithoutSessionSurfacesError(t *testing.T) {
	challenge := &fakeChallengeClient{loginErr: errors.New("cres down")}
	processor := &fakeProcessor{
		addCardResp: addCardResponse(Status3dsChallenge, "", "trx-1", "<html/>"),
	}
	svc, rec := newTestService(processor, challenge)

	err := svc.SubmitCard(context.Background(), validCardRequest())
	require.Error(t, err)

	_, _, challenges, errs := rec.snapshot()
	assert.Empty(t, challenges)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrorTypeNotInitialized, errs[0].Err.Type)
	assert.False(t, svc.State().Busy)
}

func TestThreeDs_MissingTransactionReference(t *testing.T) {
	processor := &fakeProcessor{
		addCardResp: addCardResponse(Status3dsChallenge, "", "", "<html/>"),
	}
	svc, rec := newTestService(processor, &fakeChallengeClient{})

	err := svc.SubmitCard(context.Background(), validCardRequest())
	require.Error(t, err)

	_, _, _, errs := rec.snapshot()
	require.Len(t, errs, 1)
	assert.Equal(t, ErrorTypeMissingTransaction, errs[0].Err.Type)
}

func TestThreeDs_PendingContinuationSettles(t *testing.T) {
	continues := 0
	processor := &fakeProcessor{
		// no challenge payload: straight into the continuation loop
		addCardResp: addCardResponse(Status3dsMethodRequired, "", "trx-1", ""),
		verifyFn: func(req nuvei.VerifyRequest) (*response.Verify, error) {
			require.Equal(t, nuvei.VerifyTypeAuthenticationContinue, req.Type)
			continues++
			if continues < 3 {
				return verifyResponse(response.TransactionStatusPending, 0, ""), nil
			}
			return verifyResponse(response.TransactionStatusSuccess, 0, ""), nil
		},
	}
	svc, rec := newTestService(processor, &fakeChallengeClient{})

	require.NoError(t, svc.SubmitCard(context.Background(), validCardRequest()))

	_, verifies, _, errs := rec.snapshot()
	require.Len(t, verifies, 1, "exactly one terminal delivery")
	assert.Empty(t, errs)
	assert.Equal(t, 3, continues)

	state := svc.State()
	assert.False(t, state.Busy)
	assert.False(t, state.Awaiting3ds)
	assert.False(t, state.HasTransaction)
}

func TestThreeDs_PendingContinuationBounded(t *testing.T) {
	processor := &fakeProcessor{
		addCardResp: addCardResponse(Status3dsMethodRequired, "", "trx-1", ""),
		verifyFn: func(req nuvei.VerifyRequest) (*response.Verify, error) {
			return verifyResponse(response.TransactionStatusPending, 0, ""), nil
		},
	}
	svc, rec := newTestService(processor, &fakeChallengeClient{})

	err := svc.SubmitCard(context.Background(), validCardRequest())
	require.Error(t, err)

	_, _, _, errs := rec.snapshot()
	require.Len(t, errs, 1)
	assert.Equal(t, ErrorTypeTimeout, errs[0].Err.Type)
	assert.Len(t, processor.verifyCalls(), testConfig().MaxContinues)
	assert.False(t, svc.State().Busy)
}

func TestThreeDs_ContinuationFailureKeepsState(t *testing.T) {
	processor := &fakeProcessor{
		addCardResp: addCardResponse(Status3dsMethodRequired, "", "trx-1", ""),
		verifyFn: func(req nuvei.VerifyRequest) (*response.Verify, error) {
			return verifyResponse(response.TransactionStatusFailure, 0, ""), nil
		},
	}
	svc, rec := newTestService(processor, &fakeChallengeClient{})

	require.NoError(t, svc.SubmitCard(context.Background(), validCardRequest()))

	_, verifies, _, _ := rec.snapshot()
	require.Len(t, verifies, 1)
	// failure is delivered but state is not auto-cleared
	assert.True(t, svc.State().HasTransaction)
}

func TestCancelChallenge_StopsPollAndClears(t *testing.T) {
	challenge := &fakeChallengeClient{
		getDataFn: func(int) (*cres.DataResponse, error) {
			return &cres.DataResponse{}, nil
		},
	}
	processor := &fakeProcessor{
		addCardResp: addCardResponse(Status3dsChallenge, "", "trx-1", "<html/>"),
	}
	svc, rec := newTestService(processor, challenge)

	require.NoError(t, svc.SubmitCard(context.Background(), validCardRequest()))
	require.True(t, svc.State().Awaiting3ds)

	svc.CancelChallenge()
	svc.CancelChallenge()

	// let any tick that was already in flight drain
	time.Sleep(20 * time.Millisecond)

	state := svc.State()
	assert.False(t, state.Awaiting3ds)
	assert.False(t, state.Busy)
	assert.False(t, state.HasTransaction)

	before, _ := challenge.calls()
	time.Sleep(50 * time.Millisecond)
	after, _ := challenge.calls()
	assert.Equal(t, before, after, "poll kept running after cancellation")

	_, verifies, _, _ := rec.snapshot()
	assert.Empty(t, verifies)
}

func TestPollFailureNotifiesHost(t *testing.T) {
	challenge := &fakeChallengeClient{
		getDataFn: func(int) (*cres.DataResponse, error) {
			return nil, errors.New("cres unreachable")
		},
	}
	processor := &fakeProcessor{
		addCardResp: addCardResponse(Status3dsChallenge, "", "trx-1", "<html/>"),
	}
	svc, rec := newTestService(processor, challenge)

	require.NoError(t, svc.SubmitCard(context.Background(), validCardRequest()))

	require.Eventually(t, func() bool {
		_, _, _, errs := rec.snapshot()
		return len(errs) == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.False(t, svc.State().Awaiting3ds)
}
