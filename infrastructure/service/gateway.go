package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"mpesa-checkout/infrastructure/config"
	"mpesa-checkout/infrastructure/metrics"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseBody = 1 << 20
)

var checkoutIDFields = []string{"CheckoutRequestID", "checkoutRequestId", "checkoutRequestID", "checkout_request_id"}

type IGateway interface {
	Initiate(ctx context.Context, input InitiateRequest) (*InitiateResponse, error)
}

type gateway struct {
	baseURL       string
	authorization string
	client        *http.Client
	timeout       time.Duration
}

func NewGateway(cfg config.Gateway) IGateway {
	return NewGatewayWithClient(cfg, nil)
}

// NewGatewayWithClient lets tests point the gateway at an httptest server.
func NewGatewayWithClient(cfg config.Gateway, client *http.Client) IGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &gateway{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		authorization: "Basic " + basicToken(cfg),
		client:        client,
		timeout:       timeout,
	}
}

func basicToken(cfg config.Gateway) string {
	if cfg.BasicToken != "" {
		return strings.TrimSpace(strings.TrimPrefix(cfg.BasicToken, "Basic "))
	}
	return base64.StdEncoding.EncodeToString([]byte(cfg.APIKey + ":" + cfg.APISecret))
}

func (g *gateway) Initiate(ctx context.Context, input InitiateRequest) (*InitiateResponse, error) {
	start := time.Now()
	resp, err := g.initiate(ctx, input)

	result := "success"
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		result = string(gwErr.Kind)
	}
	metrics.ObserveGateway(result, time.Since(start).Seconds())

	return resp, err
}

func (g *gateway) initiate(ctx context.Context, input InitiateRequest) (*InitiateResponse, error) {
	ctx, cancelCtx := context.WithTimeout(ctx, g.timeout)
	defer cancelCtx()

	body, err := json.Marshal(postInitiate{
		Amount:            input.Amount.InexactFloat64(),
		PhoneNumber:       input.PhoneNumber,
		ChannelID:         input.ChannelID,
		Provider:          Provider,
		ExternalReference: input.ExternalReference,
		CallbackURL:       input.CallbackURL,
	})
	if err != nil {
		return nil, &GatewayError{Kind: KindProtocol, Reason: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/payments", g.baseURL), bytes.NewBuffer(body))
	if err != nil {
		return nil, &GatewayError{Kind: KindTransport, Reason: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", g.authorization)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &GatewayError{Kind: KindTransport, Reason: transportReason(err), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &GatewayError{Kind: KindTransport, Reason: "read response", StatusCode: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return parseAccepted(resp.StatusCode, raw)
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, &GatewayError{
			Kind:       KindRejection,
			Reason:     rejectionReason(resp.StatusCode, raw),
			StatusCode: resp.StatusCode,
			Body:       raw,
		}
	default:
		return nil, &GatewayError{
			Kind:       KindProtocol,
			Reason:     fmt.Sprintf("unexpected status %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
			Body:       raw,
			Err:        ErrUnexpectedStatus,
		}
	}
}

func parseAccepted(status int, raw []byte) (*InitiateResponse, error) {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, &GatewayError{Kind: KindProtocol, Reason: "malformed response body", StatusCode: status, Body: raw, Err: err}
	}

	for _, field := range checkoutIDFields {
		if id, ok := body[field].(string); ok && strings.TrimSpace(id) != "" {
			return &InitiateResponse{CheckoutRequestID: strings.TrimSpace(id), RawBody: raw}, nil
		}
	}

	return nil, &GatewayError{
		Kind:       KindProtocol,
		Reason:     ErrMissingCheckoutID.Error(),
		StatusCode: status,
		Body:       raw,
		Err:        ErrMissingCheckoutID,
	}
}

func rejectionReason(status int, raw []byte) string {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, field := range []string{"message", "error_message", "errorMessage", "error", "ResponseDescription"} {
			if msg, ok := body[field].(string); ok && msg != "" {
				return msg
			}
		}
	}

	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return http.StatusText(status)
}

func transportReason(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return "gateway request timed out"
	}
	return "gateway unreachable: " + err.Error()
}
