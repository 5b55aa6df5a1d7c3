// Package dispatch is the orchestration core: snapshot the template, resolve
// tokens, call the provider adapter, and append the attempt to the ledger
// before returning. Every dispatch that returns has a log row.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"dispatchd/internal/catalog"
	"dispatchd/internal/domain"
	"dispatchd/internal/ledger"
	"dispatchd/internal/observability"
	"dispatchd/internal/providers"
	"dispatchd/internal/resolve"
	"dispatchd/internal/settings"
	"dispatchd/internal/util"
)

type Ledger interface {
	Append(ctx context.Context, e ledger.Entry) (int64, error)
	Get(ctx context.Context, id int64) (ledger.Entry, bool, error)
}

type SettingsSource interface {
	Snapshot(ctx context.Context) (settings.Snapshot, error)
}

type AdapterSource interface {
	For(snap settings.Snapshot, channel domain.Channel) (providers.Adapter, error)
}

type Dispatcher struct {
	Settings SettingsSource
	Adapters AdapterSource
	Ledger   Ledger

	// Defs defaults to the built-in catalog.
	Defs []catalog.TemplateDefinition
	// Timeout bounds one adapter call. Defaults to 15s.
	Timeout  time.Duration
	Breakers *BreakerSet
	// IDGen produces correlation ids when the caller supplied none.
	IDGen func() string
}

// Dispatch runs the full resolve → send → log sequence. Delivery problems of
// any kind come back as a response with Success=false; the error return is
// reserved for hard failures (unknown event type, ledger write failure) that
// the caller must not treat as a delivery outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.DispatchRequest) (domain.DispatchResponse, error) {
	snap, err := d.Settings.Snapshot(ctx)
	if err != nil {
		return domain.DispatchResponse{}, err
	}

	reg := catalog.NewRegistry(d.defs(), snap)
	def, ok := reg.Get(req.EventType)
	if !ok {
		return domain.DispatchResponse{}, fmt.Errorf("%w: %q", domain.ErrUnknownEventType, req.EventType)
	}

	if def.Channel == domain.ChannelSMS {
		req.Recipient = util.NormalizePhone(req.Recipient)
	}
	if req.CorrelationID == "" {
		req.CorrelationID = d.newCorrelationID()
	}
	if req.RawTokens == nil {
		req.RawTokens, _ = json.Marshal(req.TokenValues)
	}

	provider := providerLabel(snap, def.Channel)

	if !def.Configured() {
		res := notSent(fmt.Sprintf("template %q not configured", def.Key))
		return d.finish(ctx, req, def, provider, res, domain.OutcomeNotSent)
	}

	var payload providers.Payload
	switch def.Channel {
	case domain.ChannelSMS:
		args, err := resolve.Positional(def, req.TokenValues)
		if err != nil {
			return d.finish(ctx, req, def, provider, notSent(err.Error()), domain.OutcomeNotSent)
		}
		payload = providers.Payload{PatternID: def.PatternID, Args: args, ParamNames: def.Tokens}
	case domain.ChannelTelegram:
		payload = providers.Payload{Text: resolve.Named(def.Text, req.TokenValues)}
	default:
		return domain.DispatchResponse{}, fmt.Errorf("template %q has unsupported channel %q", def.Key, def.Channel)
	}

	adapter, err := d.Adapters.For(snap, def.Channel)
	if err != nil {
		msg := "provider not configured"
		if !errors.Is(err, providers.ErrNotConfigured) {
			msg = err.Error()
		}
		return d.finish(ctx, req, def, provider, notSent(msg), domain.OutcomeNotSent)
	}
	provider = adapter.Name()

	res := d.send(ctx, adapter, req.Recipient, payload)
	if !res.Success && ctx.Err() != nil {
		res.ErrorText = "cancelled: " + res.ErrorText
	}

	outcome := domain.OutcomeFailed
	if res.Success {
		outcome = domain.OutcomeSent
	}
	observability.ProviderLatency.WithLabelValues(provider).Observe(res.Duration.Seconds())
	return d.finish(ctx, req, def, provider, res, outcome)
}

// Resend replays a prior attempt. Token values come from the prior row's
// snapshot, never from current business state, so the resent message is
// byte-identical even if the underlying record changed since.
func (d *Dispatcher) Resend(ctx context.Context, logID int64) (domain.DispatchResponse, error) {
	prior, found, err := d.Ledger.Get(ctx, logID)
	if err != nil {
		return domain.DispatchResponse{}, err
	}
	if !found {
		return domain.DispatchResponse{}, fmt.Errorf("%w: id %d", domain.ErrLogNotFound, logID)
	}

	var values map[string]string
	if len(prior.TokensSnapshot) > 0 {
		if err := json.Unmarshal(prior.TokensSnapshot, &values); err != nil {
			return domain.DispatchResponse{}, fmt.Errorf("decode tokens snapshot of log %d: %w", logID, err)
		}
	}

	return d.Dispatch(ctx, domain.DispatchRequest{
		EventType:    prior.EventType,
		Recipient:    prior.Recipient,
		TokenValues:  values,
		RawTokens:    prior.TokensSnapshot,
		RelatedLogID: &prior.ID,
	})
}

// send runs exactly one adapter call under the per-call timeout and the
// provider's circuit breaker. Retrying is the caller's business.
func (d *Dispatcher) send(ctx context.Context, adapter providers.Adapter, destination string, p providers.Payload) domain.DeliveryResult {
	callCtx, cancel := context.WithTimeout(ctx, d.timeout())
	defer cancel()

	if d.Breakers == nil {
		return adapter.Send(callCtx, destination, p)
	}

	var res domain.DeliveryResult
	_, err := d.Breakers.get(adapter.Name()).Execute(func() (any, error) {
		res = adapter.Send(callCtx, destination, p)
		if !res.Success {
			return nil, errors.New(res.ErrorText)
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.DeliveryResult{ErrorText: "circuit open: provider disabled after repeated failures"}
	}
	return res
}

// finish appends the ledger row and folds the result into the caller-facing
// response. The row is written even when the caller's context has already
// been cancelled, on a detached context, so the attempt is never unrecorded.
func (d *Dispatcher) finish(ctx context.Context, req domain.DispatchRequest, def catalog.TemplateDefinition, provider string, res domain.DeliveryResult, outcome domain.Outcome) (domain.DispatchResponse, error) {
	reqSnap, _ := json.Marshal(res.Request)
	respSnap, _ := json.Marshal(res.Parsed)

	entry := ledger.Entry{
		CreatedAt:           util.NowUTC(),
		Provider:            provider,
		EventType:           req.EventType,
		Recipient:           req.Recipient,
		PatternOrTemplateID: def.ProviderRef(),
		Success:             res.Success,
		TokensSnapshot:      req.RawTokens,
		RequestSnapshot:     reqSnap,
		ResponseSnapshot:    respSnap,
		RawResponse:         res.RawResponse,
		HTTPStatus:          res.HTTPStatus,
		DurationMs:          res.Duration.Milliseconds(),
		CorrelationID:       req.CorrelationID,
		ErrorText:           res.ErrorText,
		RelatedLogID:        req.RelatedLogID,
	}

	writeCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}
	id, err := d.Ledger.Append(writeCtx, entry)
	if err != nil {
		return domain.DispatchResponse{}, err
	}

	observability.Dispatches.WithLabelValues(provider, string(outcome)).Inc()

	msg := "sent"
	if !res.Success {
		msg = res.ErrorText
	}
	return domain.DispatchResponse{
		Success:       res.Success,
		Message:       msg,
		Outcome:       outcome,
		DeliveryLogID: id,
	}, nil
}

func (d *Dispatcher) defs() []catalog.TemplateDefinition {
	if d.Defs != nil {
		return d.Defs
	}
	return catalog.Builtin()
}

func (d *Dispatcher) timeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return 15 * time.Second
}

func (d *Dispatcher) newCorrelationID() string {
	if d.IDGen != nil {
		return d.IDGen()
	}
	return util.NewCorrelationID()
}

func notSent(msg string) domain.DeliveryResult {
	return domain.DeliveryResult{ErrorText: msg}
}

// providerLabel names the provider for a log row when the attempt never
// reached an adapter.
func providerLabel(snap settings.Snapshot, channel domain.Channel) string {
	if channel == domain.ChannelTelegram {
		return "telegram"
	}
	return snap.SMSProvider()
}
