// Package sms implements the stateless request/response codec for the
// number-provisioning provider. The client encodes an action plus ordered
// parameters, and decodes the provider's token vocabulary into typed results
// or a *ProviderError. It performs no throttling or retrying of its own;
// that is the dispatcher's job.
package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/numgate/numgate/pkg/config"
	"github.com/numgate/numgate/pkg/money"
)

// Client talks to the number provider over its form-encoded GET API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	currency   money.Code
}

// NewClient creates a provider client from config.
func NewClient(cfg *config.SMSProvider, currency money.Code, logger *slog.Logger) *Client {
	return &Client{
		apiKey:     cfg.ApiKey,
		baseURL:    cfg.ApiUrl,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		logger:     logger.With("component", "sms_client"),
		currency:   currency,
	}
}

// Call performs one provider request and decodes the response by action.
// Returned values are Lease, Activation, Ack, PriceList or money.Money.
func (c *Client) Call(ctx context.Context, action string, params []Param) (any, error) {
	query := url.Values{}
	query.Set("api_key", c.apiKey)
	query.Set("action", action)
	for _, p := range params {
		query.Set(p.Key, p.Value)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, &ProviderError{Kind: KindInvalidRequest, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, &ProviderError{Kind: KindTimeout, Err: err}
		}
		return nil, &ProviderError{Kind: KindUpstream, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &ProviderError{Kind: KindUpstream, Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &ProviderError{
			Kind:       KindRateLimited,
			Token:      "HTTP_429",
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if resp.StatusCode >= 500 {
		return nil, &ProviderError{
			Kind: KindUpstream,
			Err:  fmt.Errorf("provider returned status %d: %s", resp.StatusCode, truncate(body)),
		}
	}

	text := strings.TrimSpace(string(body))
	if pe := decodeErrorToken(text); pe != nil {
		return nil, pe
	}
	return c.decodeSuccess(action, text, body)
}

// errorTokens is the closed vocabulary of provider failure tokens.
// Tokens carrying arguments (SLEEP:n, BANNED:t) are matched on their prefix.
var errorTokens = map[string]ErrKind{
	"BAD_KEY":             KindInvalidRequest,
	"BAD_ACTION":          KindInvalidRequest,
	"BAD_SERVICE":         KindInvalidRequest,
	"BAD_STATUS":          KindInvalidRequest,
	"NO_ACTIVATION":       KindInvalidRequest,
	"WRONG_ACTIVATION_ID": KindInvalidRequest,
	"NO_NUMBERS":          KindNoInventory,
	"NO_BALANCE":          KindInsufficientProviderFunds,
	"TOO_MANY_REQUESTS":   KindRateLimited,
}

func decodeErrorToken(text string) *ProviderError {
	token := text
	if i := strings.IndexByte(token, ':'); i > 0 {
		token = token[:i]
	}
	switch token {
	case "SLEEP":
		return &ProviderError{
			Kind:       KindRateLimited,
			Token:      text,
			RetryAfter: parseSleepSeconds(text),
		}
	case "BANNED":
		return &ProviderError{
			Kind:       KindRateLimited,
			Token:      text,
			RetryAfter: parseSleepSeconds(text),
			Severe:     true,
		}
	}
	if kind, ok := errorTokens[token]; ok {
		return &ProviderError{Kind: kind, Token: token}
	}
	return nil
}

func (c *Client) decodeSuccess(action, text string, body []byte) (any, error) {
	switch action {
	case ActionGetNumber:
		return decodeLease(text)
	case ActionGetStatus:
		return decodeActivation(text)
	case ActionSetStatus:
		if strings.HasPrefix(text, "ACCESS_") {
			return Ack{Token: text}, nil
		}
		return nil, &ProviderError{Kind: KindUpstream, Token: text}
	case ActionGetBalance:
		return c.decodeBalance(text)
	case ActionGetPrices:
		return c.decodePrices(body)
	default:
		return nil, &ProviderError{Kind: KindInvalidRequest, Err: fmt.Errorf("unknown action %q", action)}
	}
}

// decodeLease parses "ACCESS_NUMBER:<id>:<phone>".
func decodeLease(text string) (Lease, error) {
	parts := strings.SplitN(text, ":", 3)
	if len(parts) != 3 || parts[0] != "ACCESS_NUMBER" {
		return Lease{}, &ProviderError{Kind: KindUpstream, Token: text}
	}
	return Lease{ActivationID: parts[1], PhoneNumber: parts[2]}, nil
}

// decodeActivation parses getStatus responses.
func decodeActivation(text string) (Activation, error) {
	switch {
	case text == "STATUS_WAIT_CODE", strings.HasPrefix(text, "STATUS_WAIT_RETRY"):
		return Activation{State: StateWaiting}, nil
	case strings.HasPrefix(text, "STATUS_OK:"):
		code := strings.TrimPrefix(text, "STATUS_OK:")
		return Activation{State: StateCodeReceived, Code: code, Text: code}, nil
	case text == "STATUS_CANCEL":
		return Activation{State: StateCancelled}, nil
	}
	return Activation{}, &ProviderError{Kind: KindUpstream, Token: text}
}

// decodeBalance parses "ACCESS_BALANCE:<amount>".
func (c *Client) decodeBalance(text string) (money.Money, error) {
	val, ok := strings.CutPrefix(text, "ACCESS_BALANCE:")
	if !ok {
		return money.Money{}, &ProviderError{Kind: KindUpstream, Token: text}
	}
	amount, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return money.Money{}, &ProviderError{Kind: KindUpstream, Token: text, Err: err}
	}
	m, err := money.New(amount, c.currency)
	if err != nil {
		return money.Money{}, &ProviderError{Kind: KindUpstream, Err: err}
	}
	return m, nil
}

// priceEntry is the per-service JSON shape of a getPrices response:
// {"<country>":{"<service>":{"cost":0.5,"count":10}}}
type priceEntry struct {
	Cost  float64 `json:"cost"`
	Count int     `json:"count"`
}

func (c *Client) decodePrices(body []byte) (PriceList, error) {
	var raw map[string]map[string]priceEntry
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ProviderError{Kind: KindUpstream, Err: fmt.Errorf("malformed price payload: %w", err)}
	}
	prices := make(PriceList)
	for country, services := range raw {
		for service, entry := range services {
			if entry.Count == 0 {
				continue
			}
			m, err := money.New(entry.Cost, c.currency)
			if err != nil {
				c.logger.Warn("skipping unrepresentable price", "service", service, "country", country, "cost", entry.Cost)
				continue
			}
			prices[PriceKey(service, country)] = m
		}
	}
	return prices, nil
}

// PriceKey builds the canonical "service:country" price list key.
func PriceKey(service, country string) string {
	return service + ":" + country
}

func parseSleepSeconds(text string) time.Duration {
	if i := strings.IndexByte(text, ':'); i > 0 {
		if secs, err := strconv.Atoi(strings.TrimSpace(text[i+1:])); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
