// Package paygate implements the payment-provider port over its HTTP JSON
// API, plus webhook signature verification and event decoding.
package paygate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/numgate/numgate/pkg/config"
	"github.com/numgate/numgate/pkg/money"
	"github.com/numgate/numgate/pkg/provider/payment"
)

// Client talks to the payment provider's REST API with bearer authentication.
type Client struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a payment API client from config.
func NewClient(cfg *config.Payment, logger *slog.Logger) *Client {
	return &Client{
		secretKey:  cfg.SecretKey,
		baseURL:    cfg.ApiUrl,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		logger:     logger.With("component", "paygate"),
	}
}

type initializePayload struct {
	Email       string `json:"email"`
	Amount      int64  `json:"amount"` // minor units
	Currency    string `json:"currency"`
	Reference   string `json:"reference"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type transactionData struct {
	ID              int64  `json:"id"`
	Status          string `json:"status"`
	Reference       string `json:"reference"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	PaidAt          string `json:"paid_at"`
	Channel         string `json:"channel"`
	GatewayResponse string `json:"gateway_response"`
}

// InitializeCheckout implements payment.Provider.
func (c *Client) InitializeCheckout(ctx context.Context, req payment.CheckoutRequest) (payment.CheckoutSession, error) {
	payload := initializePayload{
		Email:       req.Email,
		Amount:      req.Amount.Amount(),
		Currency:    req.Amount.Currency().String(),
		Reference:   req.Reference,
		CallbackURL: req.CallbackURL,
	}
	var data initializeData
	if err := c.post(ctx, "/transaction/initialize", payload, &data); err != nil {
		return payment.CheckoutSession{}, fmt.Errorf("%w: %w", payment.ErrCheckoutFailed, err)
	}
	c.logger.Info("checkout session opened", "reference", data.Reference)
	return payment.CheckoutSession{
		Reference:   data.Reference,
		CheckoutURL: data.AuthorizationURL,
		AccessCode:  data.AccessCode,
	}, nil
}

// VerifyTransaction implements payment.Provider.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (payment.Transaction, error) {
	var data transactionData
	if err := c.get(ctx, "/transaction/verify/"+reference, &data); err != nil {
		return payment.Transaction{}, fmt.Errorf("%w: %w", payment.ErrVerifyFailed, err)
	}
	return mapTransaction(data)
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("malformed provider response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 || !envelope.Status {
		return fmt.Errorf("provider rejected request (HTTP %d): %s", resp.StatusCode, envelope.Message)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("malformed provider data: %w", err)
		}
	}
	return nil
}

func mapTransaction(data transactionData) (payment.Transaction, error) {
	tx := payment.Transaction{
		ProviderTxID: fmt.Sprintf("%d", data.ID),
		Reference:    data.Reference,
		Status:       payment.TxStatus(data.Status),
		Amount:       money.NewFromData(data.Amount, data.Currency),
		Channel:      data.Channel,
	}
	if data.PaidAt != "" {
		paidAt, err := time.Parse(time.RFC3339, data.PaidAt)
		if err != nil {
			return payment.Transaction{}, fmt.Errorf("malformed paid_at %q: %w", data.PaidAt, err)
		}
		tx.PaidAt = paidAt
	}
	return tx, nil
}
