package cres

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
)

// Client talks to the challenge response service. None of the
// operations retry internally; retry policy for GetData belongs to the
// flow poller.
type Client interface {
	Login(ctx context.Context, clientId, clientSecret string) (*LoginResponse, error)
	CreateReference(ctx context.Context, accessToken string) (*ReferenceResponse, error)
	GetData(ctx context.Context, accessToken, referenceId string) (*DataResponse, error)
	Confirm(ctx context.Context, accessToken, referenceId string) (*DataResponse, error)
}

type client struct {
	baseUrl string
	timeout time.Duration
}

func NewClient(cfg config.Config) Client {
	return &client{
		baseUrl: cfg.CresBaseUrl(),
		timeout: cfg.HttpTimeout,
	}
}

func (c *client) generateClient() *http.Client {
	return &http.Client{
		Timeout: c.timeout,
	}
}

func (c *client) getLoginUrl() string {
	return fmt.Sprintf("%s/api/auth/login", c.baseUrl)
}

func (c *client) getCreateReferenceUrl() string {
	return fmt.Sprintf("%s/api/cres/createreference", c.baseUrl)
}

func (c *client) getDataUrl(referenceId string) string {
	return fmt.Sprintf("%s/api/cres/get/%s", c.baseUrl, referenceId)
}

func (c *client) getConfirmUrl() string {
	return fmt.Sprintf("%s/api/cres/confirm", c.baseUrl)
}

func (c *client) Login(ctx context.Context, clientId, clientSecret string) (resp *LoginResponse, err error) {
	clog := log.WithField("operation", "CRES Login")
	if clientId == "" || clientSecret == "" {
		eMsg := "clientId and clientSecret are required but are empty"
		clog.Error(eMsg)
		err = errors.Wrap(ErrInvalidInput, eMsg)
		return
	}
	body := map[string]string{
		"clientId":     clientId,
		"clientSecret": clientSecret,
	}
	resp = &LoginResponse{}
	err = c.doJson(ctx, clog, http.MethodPost, c.getLoginUrl(), "", body, resp)
	if err != nil {
		eMsg := "error calling cres login"
		clog.WithError(err).Error(eMsg)
		resp = nil
		err = errors.Wrap(err, eMsg)
		return
	}
	if !resp.IsValid() {
		eMsg := "cres login response carries no access token"
		clog.Error(eMsg)
		resp = nil
		err = errors.New(eMsg)
		return
	}
	return
}

func (c *client) CreateReference(ctx context.Context, accessToken string) (resp *ReferenceResponse, err error) {
	clog := log.WithField("operation", "CRES Create Reference")
	if accessToken == "" {
		eMsg := "token is required but is empty"
		clog.Error(eMsg)
		err = errors.Wrap(ErrInvalidInput, eMsg)
		return
	}
	resp = &ReferenceResponse{}
	err = c.doJson(ctx, clog, http.MethodPost, c.getCreateReferenceUrl(), accessToken, nil, resp)
	if err != nil {
		eMsg := "error calling cres createreference"
		clog.WithError(err).Error(eMsg)
		resp = nil
		err = errors.Wrap(err, eMsg)
		return
	}
	if !resp.IsValid() {
		eMsg := "cres reference response carries no id"
		clog.Error(eMsg)
		resp = nil
		err = errors.New(eMsg)
		return
	}
	return
}

func (c *client) GetData(ctx context.Context, accessToken, referenceId string) (resp *DataResponse, err error) {
	clog := log.WithFields(log.Fields{
		"operation": "CRES Get Data",
		"reference": referenceId,
	})
	if accessToken == "" || referenceId == "" {
		eMsg := "token and id are required but are empty"
		clog.Error(eMsg)
		err = errors.Wrap(ErrInvalidInput, eMsg)
		return
	}
	resp = &DataResponse{}
	err = c.doJson(ctx, clog, http.MethodGet, c.getDataUrl(referenceId), accessToken, nil, resp)
	if err != nil {
		eMsg := "error calling cres get"
		clog.WithError(err).Error(eMsg)
		resp = nil
		err = errors.Wrap(err, eMsg)
		return
	}
	return
}

func (c *client) Confirm(ctx context.Context, accessToken, referenceId string) (resp *DataResponse, err error) {
	clog := log.WithFields(log.Fields{
		"operation": "CRES Confirm",
		"reference": referenceId,
	})
	if accessToken == "" || referenceId == "" {
		eMsg := "token and id are required but are empty"
		clog.Error(eMsg)
		err = errors.Wrap(ErrInvalidInput, eMsg)
		return
	}
	body := map[string]string{
		"id": referenceId,
	}
	resp = &DataResponse{}
	err = c.doJson(ctx, clog, http.MethodPost, c.getConfirmUrl(), accessToken, body, resp)
	if err != nil {
		eMsg := "error calling cres confirm"
		clog.WithError(err).Error(eMsg)
		resp = nil
		err = errors.Wrap(err, eMsg)
		return
	}
	return
}

func (c *client) doJson(ctx context.Context, clog *log.Entry, method, endpoint, bearer string, body interface{}, out interface{}) (err error) {
	var reader io.Reader
	if body != nil {
		var payload []byte
		payload, err = json.Marshal(body)
		if err != nil {
			eMsg := "error marshalling request"
			clog.WithError(err).Error(eMsg)
			err = errors.Wrap(err, eMsg)
			return
		}
		reader = bytes.NewReader(payload)
	}

	var r *http.Request
	r, err = http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		eMsg := "error creating http request"
		clog.WithError(err).Error(eMsg)
		err = errors.Wrap(err, eMsg)
		return
	}
	r.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		r.Header.Set("Authorization", "Bearer "+bearer)
	}

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

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		eMsg := fmt.Sprintf("invalid http status code: %d", res.StatusCode)
		clog.Error(eMsg)
		err = errors.New(eMsg)
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
