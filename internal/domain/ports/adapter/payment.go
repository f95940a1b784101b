package adapter

import (
	"context"
	"net/url"
)

// InitiateRequest describes a hosted payment to start at the gateway.
type InitiateRequest struct {
	Reference   string
	PayerEmail  string
	Amount      int64 // minor units
	Currency    string
	Method      string
	Description string
	ReturnURL   string
}

// InitiateResult is what the payer is redirected to and how we follow up.
type InitiateResult struct {
	RedirectURL string
	PollHandle  string
}

// StatusResult is the raw status reported by the gateway. Amount is in minor
// units and zero when the gateway did not report one.
type StatusResult struct {
	Status        string
	Reference     string
	ExternalTxnID string
	Amount        int64
}

// WebhookPayload is a gateway status push after signature checks. Every field
// but Reference is optional.
type WebhookPayload struct {
	Reference     string
	ExternalTxnID string
	Amount        int64
	Status        string
	PollHandle    string
}

// PaymentGateway is the hex port for hosted payment providers.
type PaymentGateway interface {
	Name() string
	// Initiate starts a hosted payment. Rejections wrap domain.ErrGatewayRejected,
	// transport failures and timeouts wrap domain.ErrGatewayUnavailable.
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	// CheckStatus asks the gateway for the current status behind a poll handle.
	// It never mutates local state.
	CheckStatus(ctx context.Context, pollHandle string) (*StatusResult, error)
	// ParseWebhook decodes and authenticates an inbound status push. A bad
	// signature wraps domain.ErrInvalidSignature.
	ParseWebhook(form url.Values) (*WebhookPayload, error)
}
