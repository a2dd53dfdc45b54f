package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	log "github.com/sirupsen/logrus"

	"paygate/cardauth/pkg/config"
	"paygate/cardauth/pkg/cres"
	"paygate/cardauth/pkg/flow"
	"paygate/cardauth/pkg/nuvei"
)

type HandlerContext interface {
	HandleUtilityEpoch(w http.ResponseWriter, r *http.Request)
	HandleUtilityIP(w http.ResponseWriter, r *http.Request)
	HandleSubmitCard(w http.ResponseWriter, r *http.Request)
	HandleSubmitOtp(w http.ResponseWriter, r *http.Request)
	HandleCancelChallenge(w http.ResponseWriter, r *http.Request)
	HandleSubmissionEvents(w http.ResponseWriter, r *http.Request)
}

type handlerContext struct {
	cfg           config.Config
	processor     nuvei.Client
	challenge     cres.Client
	store         *Store
	rUserId       *regexp.Regexp
	rSubmissionId *regexp.Regexp
	rCardNumber   *regexp.Regexp
	rCardExpiry   *regexp.Regexp
	rCardCVC      *regexp.Regexp
	rOtpCode      *regexp.Regexp
}

type httpWithLog func(w http.ResponseWriter, r *http.Request, ctx context.Context, clog *log.Entry)

func GetRemoteAddress(r *http.Request) string {
	if val := r.Header.Get("X-Forwarded-For"); val != "" {
		return val
	} else if val := r.Header.Get("X-Real-IP"); val != "" {
		return val
	} else {
		return r.RemoteAddr
	}
}

func errorHandler(w http.ResponseWriter, status int) {
	w.WriteHeader(status)
	if status == http.StatusNotFound {
		_, _ = fmt.Fprint(w, "Page not found")
	} else {
		_, _ = fmt.Fprintf(w, "HTTP %d error", status)
	}
}

func responseWithCodeAndMessage(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	_, _ = fmt.Fprintln(w, message)
}

func jsonResponse(clog *log.Entry, w http.ResponseWriter, response interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(response)
	if err != nil {
		clog.WithError(err).Error("error in json.Encode")
	}
}

func (c *handlerContext) handleHttpWithLog(handleName, method string, w http.ResponseWriter, r *http.Request, f httpWithLog) {
	ctx := r.Context()
	clog := log.WithFields(log.Fields{
		"remote-addr": GetRemoteAddress(r),
		"uri":         r.RequestURI,
		"method":      r.Method,
		"handle":      handleName,
	}).WithContext(ctx)
	if r.Method == method {
		f(w, r, ctx, clog)
	} else {
		clog.Error("invalid request, method not allowed")
		errorHandler(w, http.StatusMethodNotAllowed)
	}
}

// submissionView is the wire shape every flow endpoint responds with.
type submissionView struct {
	SubmissionId string        `json:"submission_id"`
	State        flow.Snapshot `json:"state"`
	Events       []Event       `json:"events"`
}

func (c *handlerContext) viewOf(sub *Submission) submissionView {
	return submissionView{
		SubmissionId: sub.Id,
		State:        sub.Service().State(),
		Events:       sub.Events(),
	}
}

func (c *handlerContext) lookupSubmission(clog *log.Entry, w http.ResponseWriter, submissionId string) (*Submission, bool) {
	if !c.rSubmissionId.MatchString(submissionId) {
		clog.Warn("not valid submission id, ignoring request")
		errorHandler(w, http.StatusBadRequest)
		return nil, false
	}
	sub, ok := c.store.Get(submissionId)
	if !ok {
		clog.WithField("submission-id", submissionId).Warn("unknown submission")
		errorHandler(w, http.StatusNotFound)
		return nil, false
	}
	return sub, true
}

func (c *handlerContext) isCardValid(clog *log.Entry, cardNumber, cardExpiry, cvcCode string) bool {
	if !c.rCardNumber.MatchString(cardNumber) {
		clog.Error("card number validation failed")
		return false
	} else if !c.rCardExpiry.MatchString(cardExpiry) {
		clog.Error("card expiry validation failed")
		return false
	} else if !c.rCardCVC.MatchString(cvcCode) {
		clog.Error("cvc code validation failed")
		return false
	}
	return true
}

func (c *handlerContext) HandleSubmitCard(w http.ResponseWriter, r *http.Request) {
	h := "handleSubmitCard"
	c.handleHttpWithLog(h, http.MethodPost, w, r, func(w http.ResponseWriter, r *http.Request, ctx context.Context, clog *log.Entry) {
		userId := r.FormValue("user-id")
		userEmail := r.FormValue("user-email")
		cardNumber := r.FormValue("card-number")
		cardExpiry := r.FormValue("card-expiry")
		holderName := r.FormValue("holder-name")
		cvcCode := r.FormValue("card-cvc")
		if !c.rUserId.MatchString(userId) {
			clog.Warn("not valid user id, ignoring request")
			errorHandler(w, http.StatusBadRequest)
			return
		}
		if !c.isCardValid(clog, cardNumber, cardExpiry, cvcCode) {
			clog.Warn("not valid card details, ignoring request")
			errorHandler(w, http.StatusBadRequest)
			return
		}
		clog.WithField("user", userId).Debug("request received")

		sub := c.store.NewSubmission()
		service := flow.NewService(c.cfg, c.processor, c.challenge, sub.Callbacks())
		sub.Attach(service)

		// validation failures and processor errors are recorded as
		// events; the submission view carries them back to the client
		err := service.SubmitCard(ctx, flow.SubmitCardRequest{
			UserId:            userId,
			UserEmail:         userEmail,
			CardNumber:        cardNumber,
			HolderName:        holderName,
			Expiry:            cardExpiry,
			Cvc:               cvcCode,
			RequireHolderName: holderName != "",
		})
		if err != nil {
			clog.WithError(err).Error("submit card failed")
		}
		jsonResponse(clog, w, c.viewOf(sub))
	})
}

func (c *handlerContext) HandleSubmitOtp(w http.ResponseWriter, r *http.Request) {
	h := "handleSubmitOtp"
	c.handleHttpWithLog(h, http.MethodPost, w, r, func(w http.ResponseWriter, r *http.Request, ctx context.Context, clog *log.Entry) {
		submissionId := r.FormValue("submission-id")
		otpCode := r.FormValue("otp")
		sub, ok := c.lookupSubmission(clog, w, submissionId)
		if !ok {
			return
		}
		if !c.rOtpCode.MatchString(otpCode) {
			clog.Warn("not valid otp code, ignoring request")
			errorHandler(w, http.StatusBadRequest)
			return
		}
		err := sub.Service().SubmitOtp(ctx, otpCode)
		if err != nil {
			clog.WithError(err).Error("submit otp failed")
		}
		jsonResponse(clog, w, c.viewOf(sub))
	})
}

func (c *handlerContext) HandleCancelChallenge(w http.ResponseWriter, r *http.Request) {
	h := "handleCancelChallenge"
	c.handleHttpWithLog(h, http.MethodPost, w, r, func(w http.ResponseWriter, r *http.Request, _ context.Context, clog *log.Entry) {
		submissionId := r.FormValue("submission-id")
		sub, ok := c.lookupSubmission(clog, w, submissionId)
		if !ok {
			return
		}
		sub.Service().CancelChallenge()
		jsonResponse(clog, w, c.viewOf(sub))
	})
}

func (c *handlerContext) HandleSubmissionEvents(w http.ResponseWriter, r *http.Request) {
	h := "handleSubmissionEvents"
	c.handleHttpWithLog(h, http.MethodGet, w, r, func(w http.ResponseWriter, r *http.Request, _ context.Context, clog *log.Entry) {
		submissionId := r.FormValue("submission-id")
		sub, ok := c.lookupSubmission(clog, w, submissionId)
		if !ok {
			return
		}
		jsonResponse(clog, w, c.viewOf(sub))
	})
}

func (c *handlerContext) HandleUtilityEpoch(w http.ResponseWriter, _ *http.Request) {
	epoch := time.Now().Unix()
	responseWithCodeAndMessage(w, http.StatusOK, fmt.Sprintf("%d", epoch))
}

func (c *handlerContext) HandleUtilityIP(w http.ResponseWriter, r *http.Request) {
	remoteIp := GetRemoteAddress(r)
	responseWithCodeAndMessage(w, http.StatusOK, remoteIp)
}

func NewHandlerContext(cfg config.Config, processor nuvei.Client, challenge cres.Client, store *Store) HandlerContext {
	return &handlerContext{
		cfg:           cfg,
		processor:     processor,
		challenge:     challenge,
		store:         store,
		rUserId:       regexp.MustCompile(`(?i)^[a-z0-9@._-]{1,64}$`),
		rSubmissionId: regexp.MustCompile(`(?i)^[a-f0-9-]{36}$`),
		rCardNumber:   regexp.MustCompile(`^[0-9 ]{13,23}$`),
		rCardExpiry:   regexp.MustCompile(`^[0-9]{2}/[0-9]{2}$`),
		rCardCVC:      regexp.MustCompile(`^[0-9]{3,4}$`),
		rOtpCode:      regexp.MustCompile(`^[0-9]{4,8}$`),
	}
}
