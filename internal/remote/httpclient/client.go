// Package httpclient speaks JSON over HTTP to the payment authority.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/smallbiznis/chargeback/internal/config"
	"github.com/smallbiznis/chargeback/internal/observability/tracing"
	"github.com/smallbiznis/chargeback/internal/remote"
	"github.com/smallbiznis/chargeback/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/propagation"
)

var ErrInvalidResponse = errors.New("remote_response_invalid")

// StatusError is a non-2xx answer from the authority.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote authority returned %d", e.Code)
	}
	return fmt.Sprintf("remote authority returned %d: %s", e.Code, e.Message)
}

func (e *StatusError) StatusCode() int { return e.Code }

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type request struct {
	User         remote.UserInfo `json:"user"`
	ChargebackID string          `json:"chargeback_id"`
	Params       interface{}     `json:"params"`
}

// Client implements remote.Authority. The base URL is read from the holder on every call
// so configuration reloads apply without a restart.
type Client struct {
	config *config.SyncConfigHolder
	client *http.Client
}

var _ remote.Authority = (*Client)(nil)

func New(holder *config.SyncConfigHolder) *Client {
	return &Client{
		config: holder,
		client: &http.Client{},
	}
}

// WithHTTPClient replaces the underlying transport client.
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	c.client = client
	return c
}

func (c *Client) CreateChargeback(ctx context.Context, user remote.UserInfo, invoiceID, paymentID, chargebackID string, params remote.CreateParams) error {
	return c.post(ctx, chargebacksPath(invoiceID, paymentID), request{User: user, ChargebackID: chargebackID, Params: params})
}

func (c *Client) AcceptChargeback(ctx context.Context, user remote.UserInfo, invoiceID, paymentID, chargebackID string, params remote.AcceptParams) error {
	return c.post(ctx, operationPath(invoiceID, paymentID, chargebackID, "accept"), request{User: user, ChargebackID: chargebackID, Params: params})
}

func (c *Client) RejectChargeback(ctx context.Context, user remote.UserInfo, invoiceID, paymentID, chargebackID string, params remote.RejectParams) error {
	return c.post(ctx, operationPath(invoiceID, paymentID, chargebackID, "reject"), request{User: user, ChargebackID: chargebackID, Params: params})
}

func (c *Client) CancelChargeback(ctx context.Context, user remote.UserInfo, invoiceID, paymentID, chargebackID string, params remote.CancelParams) error {
	return c.post(ctx, operationPath(invoiceID, paymentID, chargebackID, "cancel"), request{User: user, ChargebackID: chargebackID, Params: params})
}

func (c *Client) ReopenChargeback(ctx context.Context, user remote.UserInfo, invoiceID, paymentID, chargebackID string, params remote.ReopenParams) error {
	return c.post(ctx, operationPath(invoiceID, paymentID, chargebackID, "reopen"), request{User: user, ChargebackID: chargebackID, Params: params})
}

func chargebacksPath(invoiceID, paymentID string) string {
	return "/invoices/" + url.PathEscape(invoiceID) + "/payments/" + url.PathEscape(paymentID) + "/chargebacks"
}

func operationPath(invoiceID, paymentID, chargebackID, op string) string {
	return chargebacksPath(invoiceID, paymentID) + "/" + url.PathEscape(chargebackID) + "/" + op
}

func (c *Client) post(ctx context.Context, path string, body request) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	baseURL := strings.TrimRight(c.config.Get().BaseURL, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if cid := correlation.ExtractCorrelationID(ctx); cid != "" {
		req.Header.Set(correlation.HTTPHeader, cid)
	}
	tracing.InjectContext(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func decodeError(resp *http.Response) error {
	statusErr := &StatusError{Code: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(raw) == 0 {
		return statusErr
	}

	var payload errorResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("%w: %w", statusErr, ErrInvalidResponse)
	}
	statusErr.Message = strings.TrimSpace(payload.Error.Message)
	return statusErr
}
