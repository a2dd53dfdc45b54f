package nuvei

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"paygate/cardauth/pkg/config"
	"paygate/cardauth/pkg/nuvei/response"
)

// Client is a thin adapter over the processor's tokenization and
// step-verification endpoints. It does no status interpretation; every
// status_detail decision belongs to the flow orchestrator.
type Client interface {
	AddCard(ctx context.Context, req AddCardRequest) (*response.AddCard, error)
	Verify(ctx context.Context, req VerifyRequest) (*response.Verify, error)
}

type client struct {
	baseUrl    string
	serverCode string
	serverKey  string
	timeout    time.Duration
}

func NewClient(cfg config.Config) Client {
	return &client{
		baseUrl:    cfg.BaseUrl(),
		serverCode: cfg.ServerCode,
		serverKey:  cfg.ServerKey,
		timeout:    cfg.HttpTimeout,
	}
}

func (c *client) generateClient() *http.Client {
	return &http.Client{
		Timeout: c.timeout,
	}
}

func (c *client) getAddCardUrl() string {
	return fmt.Sprintf("%s/v2/card/add", c.baseUrl)
}

func (c *client) getVerifyUrl() string {
	return fmt.Sprintf("%s/v2/transaction/verify", c.baseUrl)
}

func (c *client) AddCard(ctx context.Context, req AddCardRequest) (resp *response.AddCard, err error) {
	clog := log.WithFields(log.Fields{
		"user":      req.User.Id,
		"operation": "Add Card",
	})
	clog.Info("Processing")
	if c.serverCode == "" || c.serverKey == "" {
		clog.Error("missing processor credentials")
		err = ErrNotInitialized
		return
	}
	resp = &response.AddCard{}
	err = c.postJson(ctx, clog, c.getAddCardUrl(), req, resp)
	if err != nil {
		eMsg := "error calling card add"
		clog.WithError(err).Error(eMsg)
		resp = nil
		err = errors.Wrap(err, eMsg)
		return
	}
	if !resp.IsValid() {
		eMsg := "malformed card add response"
		clog.Error(eMsg)
		resp = nil
		err = errors.New(eMsg)
		return
	}
	return
}

func (c *client) Verify(ctx context.Context, req VerifyRequest) (resp *response.Verify, err error) {
	clog := log.WithFields(log.Fields{
		"user":        req.UserId,
		"transaction": req.TransactionId,
		"type":        req.Type,
		"operation":   "Verify",
	})
	clog.Info("Processing")
	if c.serverCode == "" || c.serverKey == "" {
		clog.Error("missing processor credentials")
		err = ErrNotInitialized
		return
	}
	wire := verifyWireRequest{
		User:        userRef{Id: req.UserId},
		Transaction: transactionRef{Id: req.TransactionId},
		Value:       req.Value,
		Type:        req.Type,
		MoreInfo:    req.MoreInfo,
	}
	resp = &response.Verify{}
	err = c.postJson(ctx, clog, c.getVerifyUrl(), wire, resp)
	if err != nil {
		eMsg := "error calling transaction verify"
		clog.WithError(err).Error(eMsg)
		resp = nil
		err = errors.Wrap(err, eMsg)
		return
	}
	if !resp.IsValid() {
		eMsg := "malformed verify response"
		clog.Error(eMsg)
		resp = nil
		err = errors.New(eMsg)
		return
	}
	return
}

func (c *client) postJson(ctx context.Context, clog *log.Entry, endpoint string, body interface{}, out interface{}) (err error) {
	var payload []byte
	payload, err = json.Marshal(body)
	if err != nil {
		eMsg := "error marshalling request"
		clog.WithError(err).Error(eMsg)
		err = errors.Wrap(err, eMsg)
		return
	}

	var r *http.Request
	r, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		eMsg := "error creating http request"
		clog.WithError(err).Error(eMsg)
		err = errors.Wrap(err, eMsg)
		return
	}
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Auth-Token", generateAuthToken(c.serverCode, c.serverKey, time.Now()))

	httpClient := c.generateClient()
	var res *http.Response
	res, err = httpClient.Do(r)
	if err != nil {
		eMsg := "error making http request"
		clog.WithError(err).Error(eMsg)
		err = errors.Wrap(err, eMsg)
		return
	}
	var data []byte
	data, err = io.ReadAll(res.Body)
	defer res.Body.Close()
	if err != nil {
		eMsg := "error reading http response"
		clog.WithError(err).Error(eMsg)
		err = errors.Wrap(err, eMsg)
		return
	}
	clog.WithField("raw", string(data)).Debug("Response received")

	// the processor reports failures both as non-2xx statuses and as
	// 200 responses carrying an error payload
	var errPayload apiErrorPayload
	if jsonErr := json.Unmarshal(data, &errPayload); jsonErr == nil && errPayload.Err != nil {
		err = &ApiError{
			Type:        errPayload.Err.Type,
			Help:        errPayload.Err.Help,
			Description: errPayload.Err.Description,
			StatusCode:  res.StatusCode,
		}
		clog.WithError(err).Error("api error response")
		return
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		err = &ApiError{
			Type:        "http_error",
			Description: fmt.Sprintf("invalid http status code: %d", res.StatusCode),
			StatusCode:  res.StatusCode,
		}
		clog.WithError(err).Error("api error response")
		return
	}

	err = json.Unmarshal(data, out)
	if err != nil {
		eMsg := "error parsing json response"
		clog.WithError(err).Error(eMsg)
		err = errors.Wrap(err, eMsg)
		return
	}
	return
}
