package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"auction-settlement/internal/domain"
	"auction-settlement/pkg/logger"
)

// HTTPClient talks to the external payment system. A settled auction
// must never be dropped silently, so a failed link request is retried
// once on a fresh connection before the error is surfaced.
type HTTPClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	log     logger.Logger
}

func NewHTTPClient(baseURL string, timeout time.Duration, log logger.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

type linkRequest struct {
	AuctionID   string  `json:"auction"`
	WinnerID    string  `json:"winner"`
	Amount      float64 `json:"amount"`
	CallbackURL string  `json:"callback_url"`
}

func (c *HTTPClient) RequestLink(ctx context.Context, auctionID, winnerID string, amount float64, callbackURL string) (*domain.PaymentLink, error) {
	body, err := json.Marshal(linkRequest{
		AuctionID:   auctionID,
		WinnerID:    winnerID,
		Amount:      amount,
		CallbackURL: callbackURL,
	})
	if err != nil {
		return nil, err
	}

	link, err := c.doRequest(ctx, c.client, body)
	if err == nil {
		return link, nil
	}

	c.log.Warn("Payment link request failed, retrying with fresh connection",
		"auction_id", auctionID, "error", err)
	c.client.CloseIdleConnections()

	retryClient := &http.Client{Timeout: c.timeout}
	link, retryErr := c.doRequest(ctx, retryClient, body)
	if retryErr != nil {
		return nil, fmt.Errorf("payment link request for auction %s: %w", auctionID, retryErr)
	}

	return link, nil
}

func (c *HTTPClient) doRequest(ctx context.Context, client *http.Client, body []byte) (*domain.PaymentLink, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payment-links", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var link domain.PaymentLink
	if err := json.NewDecoder(resp.Body).Decode(&link); err != nil {
		return nil, err
	}

	if link.PaymentID == "" || link.Link == "" {
		return nil, fmt.Errorf("provider response missing payment_id or link")
	}

	return &link, nil
}
