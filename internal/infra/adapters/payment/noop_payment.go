package payment

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"bizbilling/internal/domain"
	"bizbilling/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

const noopPollPrefix = "noop://poll/"

// NoopPaymentGateway is an in-memory gateway for local runs. Every payment
// stays "Created" until SetStatus or a webhook says otherwise.
type NoopPaymentGateway struct {
	mu       sync.Mutex
	seq      int64
	amounts  map[string]int64  // reference -> amount
	statuses map[string]string // reference -> gateway status
}

func NewNoopPaymentGateway() *NoopPaymentGateway {
	return &NoopPaymentGateway{
		amounts:  make(map[string]int64),
		statuses: make(map[string]string),
	}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) Initiate(ctx context.Context, req adapter.InitiateRequest) (*adapter.InitiateResult, error) {
	if req.Reference == "" || req.Amount <= 0 {
		return nil, fmt.Errorf("noop: bad request: %w", domain.ErrGatewayRejected)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	g.amounts[req.Reference] = req.Amount
	g.statuses[req.Reference] = "Created"
	return &adapter.InitiateResult{
		RedirectURL: fmt.Sprintf("https://example.test/pay/%d?reference=%s", g.seq, url.QueryEscape(req.Reference)),
		PollHandle:  noopPollPrefix + req.Reference,
	}, nil
}

// SetStatus simulates the payer completing or abandoning the checkout.
func (g *NoopPaymentGateway) SetStatus(reference, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[reference] = status
}

func (g *NoopPaymentGateway) CheckStatus(ctx context.Context, pollHandle string) (*adapter.StatusResult, error) {
	ref := strings.TrimPrefix(pollHandle, noopPollPrefix)
	g.mu.Lock()
	defer g.mu.Unlock()
	status, ok := g.statuses[ref]
	if !ok {
		return nil, fmt.Errorf("noop: unknown poll handle %q: %w", pollHandle, domain.ErrGatewayRejected)
	}
	return &adapter.StatusResult{
		Status:        status,
		Reference:     ref,
		ExternalTxnID: "noop-" + ref,
		Amount:        g.amounts[ref],
	}, nil
}

// ParseWebhook accepts unsigned pushes; the noop gateway is never exposed in production.
func (g *NoopPaymentGateway) ParseWebhook(form url.Values) (*adapter.WebhookPayload, error) {
	ref := form.Get("reference")
	if ref == "" {
		return nil, fmt.Errorf("noop: webhook without reference: %w", domain.ErrInvalidArgument)
	}
	p := &adapter.WebhookPayload{
		Reference:     ref,
		ExternalTxnID: form.Get("paynowreference"),
		Status:        form.Get("status"),
		PollHandle:    noopPollPrefix + ref,
	}
	if p.Status != "" {
		g.SetStatus(ref, p.Status)
	}
	return p, nil
}
