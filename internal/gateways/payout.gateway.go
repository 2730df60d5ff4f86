package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starledger/starbot/internal/model"
	"github.com/starledger/starbot/pkg/logger"
	"github.com/valyala/fasthttp"
)

var ErrPayoutRejected = errors.New("payout desk rejected the request")

type PayoutResponse struct {
	RequestID  string    `json:"request_id"`
	Status     string    `json:"status"`
	AcceptedAt time.Time `json:"accepted_at"`
}

type PayoutClientConfig struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
}

// PayoutClient submits accepted withdrawals to the payout desk over HTTP.
// Transient failures are retried with a short backoff; a 4xx answer is
// treated as a rejection and not retried.
type PayoutClient struct {
	config PayoutClientConfig
	client *fasthttp.Client
}

func NewPayoutClient(config PayoutClientConfig) *PayoutClient {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 3
	}
	return &PayoutClient{
		config: config,
		client: &fasthttp.Client{
			MaxConnsPerHost: 64,
			ReadTimeout:     config.Timeout,
			WriteTimeout:    config.Timeout,
		},
	}
}

func (c *PayoutClient) SubmitWithdrawal(ctx context.Context, req model.WithdrawalRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal withdrawal: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		_, err := c.doRequest(ctx, "POST", "/api/v1/withdrawals", body)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrPayoutRejected) {
			return err
		}
		lastErr = err

		if attempt < c.config.MaxAttempts {
			logger.Warn("payout desk request failed, retrying",
				"request", req.RequestID, "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}
	}

	return fmt.Errorf("payout desk unavailable: %w", lastErr)
}

func (c *PayoutClient) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.config.BaseURL + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")

	if body != nil {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}

	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	statusCode := resp.StatusCode()
	switch {
	case statusCode == fasthttp.StatusOK || statusCode == fasthttp.StatusAccepted:
	case statusCode >= 400 && statusCode < 500:
		return nil, fmt.Errorf("%w: status %d, body: %s", ErrPayoutRejected, statusCode, resp.Body())
	default:
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", statusCode, resp.Body())
	}

	result := make([]byte, len(resp.Body()))
	copy(result, resp.Body())

	return result, nil
}
