package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"shipcrowd-wallet/config"
	"shipcrowd-wallet/pkg/apperror"
)

// Client talks to the shipping platform's internal payments API. It
// backs both external ports: payment capture for recharges and upcoming
// settlement lookups for forecasting.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     zerolog.Logger
}

func NewClient(cfg config.PlatformConfig, log zerolog.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log.With().Str("component", "platform_client").Logger(),
	}
}

type chargeRequest struct {
	PaymentMethodRef string `json:"payment_method_ref"`
	Amount           int64  `json:"amount"`
}

type chargeResponse struct {
	ChargeID string `json:"charge_id"`
	Status   string `json:"status"`
}

// Charge captures amount from the stored payment method. The returned
// charge id is stable: retrying the same capture yields the same id,
// which downstream becomes the credit's idempotency key.
func (c *Client) Charge(ctx context.Context, paymentMethodRef string, amount int64) (string, error) {
	body, err := json.Marshal(chargeRequest{PaymentMethodRef: paymentMethodRef, Amount: amount})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/v1/charges", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperror.ErrPaymentCaptureFailed(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", apperror.ErrPaymentCaptureFailed(fmt.Errorf("charge returned status %d", resp.StatusCode))
	}

	var out chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperror.ErrPaymentCaptureFailed(err)
	}
	if out.ChargeID == "" {
		return "", apperror.ErrPaymentCaptureFailed(fmt.Errorf("charge response missing charge_id"))
	}
	return out.ChargeID, nil
}

type settlementsResponse struct {
	TotalAmount int64 `json:"total_amount"`
}

// UpcomingSettlements returns the total scheduled inflow (e.g. COD
// remittances) for a company within the window. Forecasting input only.
func (c *Client) UpcomingSettlements(ctx context.Context, companyID string, within time.Duration) (int64, error) {
	url := fmt.Sprintf("%s/internal/v1/settlements/upcoming?company_id=%s&within_hours=%d",
		c.baseURL, companyID, int(within.Hours()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("settlements lookup returned status %d", resp.StatusCode)
	}

	var out settlementsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.TotalAmount, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}
