// Package providers holds the channel adapters. Each adapter owns its
// provider's wire contract end to end: credential shape, request build,
// raw-response capture, and the classification of logical failures the
// provider signals inside a 200 body. Adapters never retry — one invocation
// is exactly one outbound call so every attempt lands in the ledger.
package providers

import (
	"context"
	"errors"
	"time"

	"dispatchd/internal/domain"
)

// Payload is the resolved, channel-specific message content. Positional
// providers use Args; named-parameter providers rebuild name/value pairs
// from ParamNames and Args; Telegram uses Text.
type Payload struct {
	PatternID  string
	Args       []string
	ParamNames []string
	Text       string
}

// Params pairs token labels with resolved values in declaration order.
func (p Payload) Params() map[string]string {
	out := make(map[string]string, len(p.Args))
	for i, name := range p.ParamNames {
		if i < len(p.Args) {
			out[name] = p.Args[i]
		}
	}
	return out
}

type Adapter interface {
	Name() string
	// Send performs exactly one outbound call. Transport and provider
	// errors are folded into the result; Send never panics or returns
	// an error past this boundary.
	Send(ctx context.Context, destination string, p Payload) domain.DeliveryResult
}

// ErrNotConfigured means the active provider's credentials are absent from
// the settings snapshot. The dispatcher records this as a not_sent outcome.
var ErrNotConfigured = errors.New("provider credentials not configured")

// TransportFailure maps a client-side error (DNS, TLS, timeout, reset) to a
// failed result with no HTTP status.
func TransportFailure(req any, start time.Time, err error) domain.DeliveryResult {
	return domain.DeliveryResult{
		Success:   false,
		Duration:  time.Since(start),
		Request:   req,
		ErrorText: err.Error(),
	}
}
