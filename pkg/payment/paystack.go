package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const DefaultPaystackURL = "https://api.paystack.co"

// PaystackProvider talks to the Paystack REST API. Paystack bills in the
// currency's minor unit, so amounts are multiplied by 100 on the way out.
type PaystackProvider struct {
	BaseURL   string
	SecretKey string
	Currency  string
	client    *http.Client
	logger    zerolog.Logger
}

func NewPaystackProvider(baseURL, secretKey, currency string, timeout time.Duration, logger zerolog.Logger) *PaystackProvider {
	if baseURL == "" {
		baseURL = DefaultPaystackURL
	}
	return &PaystackProvider{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		SecretKey: secretKey,
		Currency:  currency,
		client:    &http.Client{Timeout: timeout},
		logger:    logger.With().Str("component", "paystack").Logger(),
	}
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackInitData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type paystackVerifyData struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	PaidAt    string `json:"paid_at"`
}

type paystackTransferData struct {
	Reference    string `json:"reference"`
	TransferCode string `json:"transfer_code"`
	Status       string `json:"status"`
}

func (p *PaystackProvider) Initialize(ctx context.Context, req InitializeRequest) (*Session, error) {
	currency := req.Currency
	if currency == "" {
		currency = p.Currency
	}
	body := map[string]any{
		"email":     req.Email,
		"amount":    req.Amount * 100,
		"reference": req.Reference,
	}
	if currency != "" {
		body["currency"] = currency
	}
	if req.CallbackURL != "" {
		body["callback_url"] = req.CallbackURL
	}
	if len(req.Metadata) > 0 {
		body["metadata"] = req.Metadata
	}

	var data paystackInitData
	if err := p.do(ctx, http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return nil, fmt.Errorf("paystack initialize: %w", err)
	}
	p.logger.Info().Str("reference", req.Reference).Int64("amount", req.Amount).Msg("transaction initialized")

	return &Session{
		Reference:        req.Reference,
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
	}, nil
}

func (p *PaystackProvider) Verify(ctx context.Context, reference string) (*Confirmation, error) {
	var data paystackVerifyData
	path := "/transaction/verify/" + url.PathEscape(reference)
	if err := p.do(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, fmt.Errorf("paystack verify: %w", err)
	}

	conf := &Confirmation{
		Reference: reference,
		Status:    data.Status,
		Amount:    data.Amount / 100,
		Fraction:  data.Amount % 100,
		Currency:  data.Currency,
	}
	if data.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, data.PaidAt); err == nil {
			conf.PaidAt = &t
		}
	}
	p.logger.Info().Str("reference", reference).Str("status", data.Status).Int64("amount", conf.Amount).Msg("transaction verified")
	return conf, nil
}

func (p *PaystackProvider) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	if req.Recipient == "" {
		return "", ErrMissingRecipient
	}
	body := map[string]any{
		"source":    "balance",
		"amount":    req.Amount * 100,
		"recipient": req.Recipient,
		"reference": req.Reference,
		"reason":    req.Reason,
	}
	if req.Currency != "" {
		body["currency"] = req.Currency
	}

	var data paystackTransferData
	if err := p.do(ctx, http.MethodPost, "/transfer", body, &data); err != nil {
		return "", fmt.Errorf("paystack transfer: %w", err)
	}
	p.logger.Info().Str("reference", req.Reference).Str("transfer_code", data.TransferCode).Msg("transfer queued")

	if data.TransferCode != "" {
		return data.TransferCode, nil
	}
	return req.Reference, nil
}

func (p *PaystackProvider) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.SecretKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env paystackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("status %d: undecodable body", resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Status {
		return fmt.Errorf("status %d: %s", resp.StatusCode, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
