// File: internal/infra/adapters/payment/paynow_gateway.go
package payment

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"bizbilling/internal/config"
	"bizbilling/internal/domain"
	"bizbilling/internal/domain/model"
	"bizbilling/internal/domain/ports/adapter"
	"bizbilling/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*PaynowGateway)(nil)

// Status messages (poll responses and result URL pushes) are hashed over
// their values in this order.
var statusFields = []string{"reference", "paynowreference", "amount", "status", "pollurl"}

// PaynowGateway implements adapter.PaymentGateway against the Paynow form API.
type PaynowGateway struct {
	integrationID  string
	integrationKey string
	baseURL        *url.URL
	resultURL      string
	returnURL      string
	client         *http.Client
	polls          *rate.Limiter
	logger         *zerolog.Logger
}

// NewPaynowGateway validates the integration settings. timeout bounds every
// outbound call; pollRate/pollBurst throttle status polls across the process.
func NewPaynowGateway(cfg config.PaynowConfig, timeout time.Duration, pollRate float64, pollBurst int, logger *zerolog.Logger) (*PaynowGateway, error) {
	if cfg.IntegrationID == "" || cfg.IntegrationKey == "" {
		return nil, errors.New("paynow: integration id and key are required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("paynow: invalid base url %q", cfg.BaseURL)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if pollRate <= 0 {
		pollRate = 5
	}
	if pollBurst <= 0 {
		pollBurst = 1
	}
	l := logger.With().Str("component", "PaynowGateway").Logger()
	return &PaynowGateway{
		integrationID:  cfg.IntegrationID,
		integrationKey: cfg.IntegrationKey,
		baseURL:        base,
		resultURL:      cfg.ResultURL,
		returnURL:      cfg.ReturnURL,
		client:         &http.Client{Timeout: timeout},
		polls:          rate.NewLimiter(rate.Limit(pollRate), pollBurst),
		logger:         &l,
	}, nil
}

func (g *PaynowGateway) Name() string { return "paynow" }

// Initiate posts an initiatetransaction request and returns the browser URL
// and the poll URL.
func (g *PaynowGateway) Initiate(ctx context.Context, req adapter.InitiateRequest) (*adapter.InitiateResult, error) {
	start := time.Now()
	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = g.returnURL
	}
	form := orderedForm{
		{"id", g.integrationID},
		{"reference", req.Reference},
		{"amount", model.FormatMinor(req.Amount)},
		{"additionalinfo", req.Description},
		{"returnurl", returnURL},
		{"resulturl", g.resultURL},
		{"authemail", req.PayerEmail},
		{"status", "Message"},
	}
	form = append(form, formField{"hash", g.sign(form.values())})

	resp, err := g.post(ctx, g.baseURL.String()+"/initiatetransaction", form.encode())
	if err != nil {
		metrics.ObserveGatewayCall(g.Name(), "initiate", "unavailable", time.Since(start))
		return nil, err
	}

	if strings.EqualFold(resp.get("status"), "error") {
		metrics.ObserveGatewayCall(g.Name(), "initiate", "rejected", time.Since(start))
		return nil, fmt.Errorf("paynow: %s: %w", resp.get("error"), domain.ErrGatewayRejected)
	}
	if !g.verify(resp) {
		metrics.ObserveGatewayCall(g.Name(), "initiate", "rejected", time.Since(start))
		return nil, fmt.Errorf("paynow: initiate response hash mismatch: %w", domain.ErrGatewayRejected)
	}
	if !strings.EqualFold(resp.get("status"), "ok") || resp.get("browserurl") == "" {
		metrics.ObserveGatewayCall(g.Name(), "initiate", "rejected", time.Since(start))
		return nil, fmt.Errorf("paynow: unexpected status %q: %w", resp.get("status"), domain.ErrGatewayRejected)
	}

	metrics.ObserveGatewayCall(g.Name(), "initiate", "ok", time.Since(start))
	return &adapter.InitiateResult{
		RedirectURL: resp.get("browserurl"),
		PollHandle:  resp.get("pollurl"),
	}, nil
}

// CheckStatus posts to the poll URL Paynow handed out for a transaction.
// Only URLs on the configured Paynow host are followed.
func (g *PaynowGateway) CheckStatus(ctx context.Context, pollHandle string) (*adapter.StatusResult, error) {
	start := time.Now()
	u, err := url.Parse(pollHandle)
	if err != nil || !strings.EqualFold(u.Host, g.baseURL.Host) {
		return nil, fmt.Errorf("paynow: poll url %q outside %s: %w", pollHandle, g.baseURL.Host, domain.ErrInvalidArgument)
	}
	if err := g.polls.Wait(ctx); err != nil {
		return nil, fmt.Errorf("paynow: poll throttled: %v: %w", err, domain.ErrGatewayUnavailable)
	}

	resp, err := g.post(ctx, u.String(), "")
	if err != nil {
		metrics.ObserveGatewayCall(g.Name(), "status", "unavailable", time.Since(start))
		return nil, err
	}
	if strings.EqualFold(resp.get("status"), "error") {
		metrics.ObserveGatewayCall(g.Name(), "status", "rejected", time.Since(start))
		return nil, fmt.Errorf("paynow: %s: %w", resp.get("error"), domain.ErrGatewayRejected)
	}
	if !g.verify(resp) {
		metrics.ObserveGatewayCall(g.Name(), "status", "rejected", time.Since(start))
		return nil, fmt.Errorf("paynow: status response hash mismatch: %w", domain.ErrInvalidSignature)
	}

	res := &adapter.StatusResult{
		Status:        resp.get("status"),
		Reference:     resp.get("reference"),
		ExternalTxnID: resp.get("paynowreference"),
	}
	if raw := resp.get("amount"); raw != "" {
		amount, err := model.ParseMinor(raw)
		if err != nil {
			metrics.ObserveGatewayCall(g.Name(), "status", "rejected", time.Since(start))
			return nil, fmt.Errorf("paynow: bad amount: %w", err)
		}
		res.Amount = amount
	}
	metrics.ObserveGatewayCall(g.Name(), "status", "ok", time.Since(start))
	return res, nil
}

// ParseWebhook authenticates a result URL push. The hash covers the status
// fields in their documented order, so the original body order is not needed.
func (g *PaynowGateway) ParseWebhook(form url.Values) (*adapter.WebhookPayload, error) {
	if form.Get("reference") == "" {
		return nil, fmt.Errorf("paynow: webhook without reference: %w", domain.ErrInvalidArgument)
	}
	values := make([]string, 0, len(statusFields))
	for _, k := range statusFields {
		if v, ok := form[k]; ok && len(v) > 0 {
			values = append(values, v[0])
		}
	}
	if !hashEqual(g.sign(values), form.Get("hash")) {
		return nil, fmt.Errorf("paynow: webhook for %s: %w", form.Get("reference"), domain.ErrInvalidSignature)
	}

	p := &adapter.WebhookPayload{
		Reference:     form.Get("reference"),
		ExternalTxnID: form.Get("paynowreference"),
		Status:        form.Get("status"),
		PollHandle:    form.Get("pollurl"),
	}
	if raw := form.Get("amount"); raw != "" {
		amount, err := model.ParseMinor(raw)
		if err != nil {
			return nil, err
		}
		p.Amount = amount
	}
	return p, nil
}

func (g *PaynowGateway) post(ctx context.Context, target, body string) (orderedForm, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("paynow: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paynow: %v: %w", err, domain.ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("paynow: read response: %v: %w", err, domain.ErrGatewayUnavailable)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("paynow: http %d: %w", resp.StatusCode, domain.ErrGatewayUnavailable)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("paynow: http %d: %w", resp.StatusCode, domain.ErrGatewayRejected)
	}
	form, err := parseOrderedForm(string(raw))
	if err != nil {
		g.logger.Warn().Err(err).Int("status", resp.StatusCode).Msg("unparseable gateway response")
		return nil, fmt.Errorf("paynow: %v: %w", err, domain.ErrGatewayRejected)
	}
	return form, nil
}

// sign is the uppercase hex SHA512 of the concatenated values and the integration key.
func (g *PaynowGateway) sign(values []string) string {
	h := sha512.New()
	for _, v := range values {
		_, _ = io.WriteString(h, v)
	}
	_, _ = io.WriteString(h, g.integrationKey)
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil)))
}

// verify checks a response hash over every field except the hash, in the order received.
func (g *PaynowGateway) verify(form orderedForm) bool {
	var values []string
	for _, f := range form {
		if !strings.EqualFold(f.key, "hash") {
			values = append(values, f.value)
		}
	}
	return hashEqual(g.sign(values), form.get("hash"))
}
