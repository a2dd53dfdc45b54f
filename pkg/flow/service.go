package flow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"paygate/cardauth/pkg/card"
	"paygate/cardauth/pkg/config"
	"paygate/cardauth/pkg/cres"
	"paygate/cardauth/pkg/nuvei"
	"paygate/cardauth/pkg/nuvei/response"
)

// Service orchestrates one card-add submission end to end: submit
// tokenization, branch on the processor's status_detail, drive the OTP
// or 3DS sub-flow to a terminal outcome. One submission is live per
// instance at a time; session-scoped state (access token, challenge
// reference, transaction reference) is owned by the instance for the
// submission's lifetime.
type Service interface {
	SubmitCard(ctx context.Context, req SubmitCardRequest) error
	SubmitOtp(ctx context.Context, code string) error
	// CancelChallenge is the user-dismissal exit path of the 3DS
	// challenge: stops polling and abandons the submission.
	CancelChallenge()
	State() Snapshot
}

type service struct {
	cfg       config.Config
	processor nuvei.Client
	challenge cres.Client
	callbacks Callbacks
	poller    *Poller

	mu             sync.Mutex
	busy           bool
	loading        bool
	awaitingOtp    bool
	awaiting3ds    bool
	otpValid       bool
	userId         string
	transactionRef string
	session        ChallengeSession
}

func NewService(cfg config.Config, processor nuvei.Client, challenge cres.Client, callbacks Callbacks) Service {
	return &service{
		cfg:       cfg,
		processor: processor,
		challenge: challenge,
		callbacks: callbacks,
		poller:    NewPoller(challenge, cfg.PollInterval),
		otpValid:  true,
	}
}

func (s *service) SubmitCard(ctx context.Context, req SubmitCardRequest) (err error) {
	clog := log.WithFields(log.Fields{
		"user":      req.UserId,
		"operation": "Submit Card",
	})
	clog.Info("Processing")

	var month, year int
	var brand card.Brand
	month, year, brand, err = validateCardRequest(req)
	if err != nil {
		clog.WithError(err).Error("card validation failed")
		e := newError(ErrorTypeInvalidInput, err.Error())
		s.callbacks.OnError(e)
		return e
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		clog.Warn("submission already in flight, rejecting")
		return ErrBusy
	}
	s.busy = true
	s.userId = req.UserId
	s.mu.Unlock()
	s.setLoading(true)
	defer func() {
		s.clearBusyFlag()
		s.setLoading(false)
	}()

	// acquire the challenge session up front so a 3DS challenge, if
	// required, can embed the reference in the tokenization return url;
	// failure only disables the 3DS path
	s.acquireChallengeSession(ctx, clog)

	addReq := nuvei.AddCardRequest{
		User: nuvei.User{
			Id:    req.UserId,
			Email: req.UserEmail,
		},
		Card: nuvei.CardData{
			Number:      normalizeCardNumber(req.CardNumber),
			HolderName:  req.HolderName,
			ExpiryMonth: month,
			ExpiryYear:  year,
			Cvc:         req.Cvc,
			Type:        brand.Code,
		},
		ExtraParams: nuvei.ExtraParams{
			ThreeDS2Data: nuvei.ThreeDS2Data{
				TermUrl:    fmt.Sprintf(s.cfg.TermUrlTemplate, s.currentSession().ReferenceId),
				DeviceType: "browser",
			},
			BrowserInfo: browserInfoOrDefault(req.BrowserInfo),
		},
	}

	var resp *response.AddCard
	resp, err = s.processor.AddCard(ctx, addReq)
	if err != nil {
		clog.WithError(err).Error("card add failed")
		s.callbacks.OnError(classify(err))
		return err
	}

	// transaction reference belongs to flow state, it must survive
	// until the submission reaches a terminal outcome
	trxRef := resp.Card.TransactionReference
	if trxRef != "" {
		s.mu.Lock()
		s.transactionRef = trxRef
		s.mu.Unlock()
	}

	detail := resp.Transaction.StatusDetail
	clog = clog.WithField("status-detail", detail)
	switch detail {
	case StatusDetailFinal:
		s.setLoading(false)
		if resp.Card.Status == response.CardStatusValid {
			clog.Info("card added")
			s.callbacks.OnSuccess(true, "Card Added Successfully")
		} else {
			clog.WithField("card-status", resp.Card.Status).Info("card declined")
			s.callbacks.OnSuccess(false, fmt.Sprintf("Card Status: %s", resp.Card.Status))
		}
		s.clearAll()
		return nil
	case StatusDetailHardDecline:
		clog.WithField("card-status", resp.Card.Status).Info("hard decline")
		s.setLoading(false)
		s.callbacks.OnSuccess(false, fmt.Sprintf("Card Status: %s", resp.Card.Status))
		return nil
	case StatusDetailOtpRequired:
		clog.Info("otp verification required")
		s.mu.Lock()
		s.awaitingOtp = true
		s.otpValid = true
		s.mu.Unlock()
		return nil
	case Status3dsMethodRequired, Status3dsChallenge:
		clog.Info("3ds verification required")
		var br *response.BrowserResponse
		if resp.ThreeDS != nil {
			br = resp.ThreeDS.BrowserResponse
		}
		return s.verifyBy3ds(ctx, clog, br, trxRef)
	default:
		clog.Error("unrecognized status detail")
		e := newError(ErrorTypeUnexpectedStatus, fmt.Sprintf("unrecognized status_detail %d in tokenization response", detail))
		s.callbacks.OnError(e)
		return e
	}
}

func (s *service) SubmitOtp(ctx context.Context, code string) (err error) {
	clog := log.WithField("operation", "Submit OTP")
	clog.Info("Processing")

	if err = card.ValidateOtp(code); err != nil {
		clog.WithError(err).Error("otp validation failed")
		e := newError(ErrorTypeInvalidInput, err.Error())
		s.callbacks.OnError(e)
		return e
	}

	s.mu.Lock()
	if !s.awaitingOtp {
		s.mu.Unlock()
		clog.Error("otp sub-flow is not active")
		e := newError(ErrorTypeInvalidInput, "otp sub-flow is not active")
		s.callbacks.OnError(e)
		return e
	}
	if s.busy {
		s.mu.Unlock()
		clog.Warn("submission already in flight, rejecting")
		return ErrBusy
	}
	trxRef := s.transactionRef
	userId := s.userId
	if trxRef == "" {
		s.mu.Unlock()
		clog.Error("transaction reference missing")
		e := newError(ErrorTypeMissingTransaction, "transactionRef missing")
		s.callbacks.OnError(e)
		return e
	}
	s.busy = true
	s.mu.Unlock()
	s.setLoading(true)
	defer func() {
		s.clearBusyFlag()
		s.setLoading(false)
	}()

	var resp *response.Verify
	resp, err = s.processor.Verify(ctx, nuvei.VerifyRequest{
		UserId:        userId,
		TransactionId: trxRef,
		Type:          nuvei.VerifyTypeByOtp,
		Value:         code,
		MoreInfo:      true,
	})
	if err != nil {
		clog.WithError(err).Error("otp verify failed")
		s.callbacks.OnError(classify(err))
		return err
	}

	detail := resp.StatusDetail()
	clog = clog.WithField("status-detail", detail)
	switch detail {
	case StatusDetailOtpValid:
		clog.Info("otp accepted")
		s.mu.Lock()
		s.otpValid = true
		s.mu.Unlock()
		s.callbacks.OnVerify(resp)
		s.clearAll()
	case StatusDetailOtpAlternate:
		clog.Info("otp accepted via alternate path")
		s.clearAll()
		s.callbacks.OnVerify(resp)
	case StatusDetailOtpRequired:
		clog.Info("otp rejected, retry allowed")
		s.mu.Lock()
		s.otpValid = false
		s.mu.Unlock()
	default:
		clog.Warn("unrecognized status detail, treating as rejected")
		s.mu.Lock()
		s.otpValid = false
		s.mu.Unlock()
	}
	return nil
}

// verifyBy3ds drives the 3DS sub-flow: either present a challenge and
// suspend while the poller watches for its completion, or run the
// bounded AUTHENTICATION_CONTINUE loop until the processor settles.
func (s *service) verifyBy3ds(ctx context.Context, clog *log.Entry, br *response.BrowserResponse, trxRef string) error {
	if trxRef == "" {
		clog.Error("transaction reference missing for 3ds")
		e := newError(ErrorTypeMissingTransaction, "transactionRef is required for 3DS")
		s.callbacks.OnError(e)
		return e
	}

	deadline := time.Now().Add(s.cfg.ContinueDeadline)
	for attempt := 0; ; attempt++ {
		if br != nil && br.ChallengeRequest != "" {
			session := s.currentSession()
			if !session.IsUsable() {
				clog.Error("challenge session token/reference not available")
				e := newError(ErrorTypeNotInitialized, "CRES token/ref not available")
				s.callbacks.OnError(e)
				return e
			}
			s.mu.Lock()
			s.awaiting3ds = true
			s.mu.Unlock()
			// hand the challenge to the host and suspend: busy clears
			// while the cardholder interacts with it
			s.setLoading(false)
			s.callbacks.OnChallenge(br.ChallengeRequest)
			s.poller.Start(session, func(cresValue string) {
				s.challengeValidationCres(context.Background(), cresValue, trxRef)
			}, s.onPollError)
			return nil
		}

		if attempt >= s.cfg.MaxContinues || time.Now().After(deadline) {
			clog.WithField("attempts", attempt).Error("3ds continuation budget exceeded")
			e := newError(ErrorTypeTimeout, "3DS authentication did not settle within the continuation budget")
			s.callbacks.OnError(e)
			return e
		}
		select {
		case <-ctx.Done():
			s.callbacks.OnError(classify(ctx.Err()))
			return ctx.Err()
		case <-time.After(s.cfg.ContinueDelay):
		}

		resp, err := s.processor.Verify(ctx, nuvei.VerifyRequest{
			UserId:        s.currentUserId(),
			TransactionId: trxRef,
			Type:          nuvei.VerifyTypeAuthenticationContinue,
			MoreInfo:      true,
		})
		if err != nil {
			clog.WithError(err).Error("3ds continuation verify failed")
			s.callbacks.OnError(classify(err))
			return err
		}
		switch resp.Status() {
		case response.TransactionStatusSuccess:
			clog.Info("3ds authentication settled")
			s.setLoading(false)
			s.callbacks.OnVerify(resp)
			s.clearAll()
			return nil
		case response.TransactionStatusFailure:
			clog.Info("3ds authentication failed")
			s.setLoading(false)
			s.callbacks.OnVerify(resp)
			return nil
		case response.TransactionStatusPending:
			clog.Debug("3ds authentication still pending")
			br = resp.BrowserResponse()
		default:
			clog.WithField("status", resp.Status()).Error("unexpected 3ds status")
			e := newError(ErrorTypeUnexpectedStatus, fmt.Sprintf("unexpected status %q in 3DS continuation", resp.Status()))
			s.callbacks.OnError(e)
			return e
		}
	}
}

// challengeValidationCres consumes a challenge response value exactly
// once. The poller is stopped in a guaranteed final step even when the
// verify call fails.
func (s *service) challengeValidationCres(ctx context.Context, cresValue, trxRef string) {
	clog := log.WithFields(log.Fields{
		"operation":   "Challenge Validation",
		"transaction": trxRef,
	})
	clog.Info("Processing")
	defer s.poller.Stop()

	s.mu.Lock()
	s.awaiting3ds = false
	s.busy = true
	s.mu.Unlock()
	s.setLoading(true)
	defer func() {
		s.clearBusyFlag()
		s.setLoading(false)
	}()

	resp, err := s.processor.Verify(ctx, nuvei.VerifyRequest{
		UserId:        s.currentUserId(),
		TransactionId: trxRef,
		Type:          nuvei.VerifyTypeByCres,
		Value:         cresValue,
		MoreInfo:      true,
	})
	if err != nil {
		clog.WithError(err).Error("cres verify failed")
		s.callbacks.OnError(classify(err))
		return
	}
	clog.Info("challenge validated")
	s.callbacks.OnVerify(resp)
	s.clearAll()
}

func (s *service) CancelChallenge() {
	clog := log.WithField("operation", "Cancel Challenge")
	clog.Info("Processing")
	s.poller.Stop()
	s.clearAll()
	s.clearBusyFlag()
	s.setLoading(false)
}

func (s *service) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Busy:           s.busy,
		AwaitingOtp:    s.awaitingOtp,
		Awaiting3ds:    s.awaiting3ds,
		OtpValid:       s.otpValid,
		HasTransaction: s.transactionRef != "",
	}
}

// onPollError surfaces a failed challenge fetch; the poller has
// already stopped (fail closed) by the time this runs.
func (s *service) onPollError(err error) {
	s.mu.Lock()
	s.awaiting3ds = false
	s.mu.Unlock()
	s.callbacks.OnError(classify(err))
}

func (s *service) acquireChallengeSession(ctx context.Context, clog *log.Entry) {
	login, err := s.challenge.Login(ctx, s.cfg.CresClientId, s.cfg.CresClientSecret)
	if err != nil {
		clog.WithError(err).Warn("challenge session login failed, 3ds path disabled")
		return
	}
	ref, err := s.challenge.CreateReference(ctx, login.AccessToken)
	if err != nil {
		clog.WithError(err).Warn("challenge reference creation failed, 3ds path disabled")
		return
	}
	s.mu.Lock()
	s.session = ChallengeSession{
		AccessToken: login.AccessToken,
		ReferenceId: ref.Id,
		CreatedAt:   time.Now(),
	}
	s.mu.Unlock()
	clog.WithField("reference", ref.Id).Info("challenge session acquired")
}

// clearAll resets both the host-visible form flags and the
// session-scoped flow state. Clearing one without the other would risk
// stale-session reuse on the next submission.
func (s *service) clearAll() {
	s.mu.Lock()
	s.awaitingOtp = false
	s.awaiting3ds = false
	s.otpValid = true
	s.userId = ""
	s.transactionRef = ""
	s.session = ChallengeSession{}
	s.mu.Unlock()
}

func (s *service) clearBusyFlag() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// setLoading flips the busy indicator and notifies the host only on
// actual transitions.
func (s *service) setLoading(isLoading bool) {
	s.mu.Lock()
	changed := s.loading != isLoading
	s.loading = isLoading
	s.mu.Unlock()
	if changed {
		s.callbacks.OnLoading(isLoading)
	}
}

func (s *service) currentSession() ChallengeSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *service) currentUserId() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userId
}

func validateCardRequest(req SubmitCardRequest) (month, year int, brand card.Brand, err error) {
	if req.UserId == "" {
		err = errors.New("user id is required")
		return
	}
	if err = card.ValidateNumber(req.CardNumber); err != nil {
		return
	}
	brand = card.Detect(req.CardNumber)
	if err = card.ValidateHolderName(req.HolderName, req.RequireHolderName); err != nil {
		return
	}
	if month, year, err = card.ParseExpiry(req.Expiry); err != nil {
		return
	}
	err = card.ValidateCvc(req.Cvc, brand)
	return
}

func normalizeCardNumber(number string) string {
	return strings.ReplaceAll(strings.TrimSpace(number), " ", "")
}

func browserInfoOrDefault(info *nuvei.BrowserInfo) nuvei.BrowserInfo {
	if info != nil {
		return *info
	}
	return nuvei.DefaultBrowserInfo()
}
