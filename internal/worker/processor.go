package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dispatchd/internal/dispatch"
	"dispatchd/internal/domain"
	"dispatchd/internal/observability"
	sqsqueue "dispatchd/internal/queue/sqs"
	"dispatchd/internal/util"
)

type Deduper interface {
	ClaimDedupe(ctx context.Context, eventType, recipient, businessRef string, day time.Time) (bool, error)
	ReleaseDedupe(ctx context.Context, eventType, recipient, businessRef string, day time.Time) error
}

// Processor turns queued scheduler jobs into dispatches. Delivery failures
// are final, logged outcomes; only hard failures (storage) are returned so
// SQS redrives the message.
type Processor struct {
	Dispatcher *dispatch.Dispatcher
	// Dedupe guards automatic reminders against a flaky scheduler firing
	// the same (event, recipient, businessRef) twice on one day. Nil
	// disables the guard.
	Dedupe Deduper
}

func (p *Processor) Process(ctx context.Context, job sqsqueue.DispatchJob) error {
	day := util.NowUTC()

	claimed := false
	if p.Dedupe != nil && job.BusinessRef != "" {
		ok, err := p.Dedupe.ClaimDedupe(ctx, job.EventType, job.Recipient, job.BusinessRef, day)
		if err != nil {
			return err
		}
		if !ok {
			observability.DedupeSkips.Inc()
			slog.Info("duplicate scheduler job skipped",
				"event_type", job.EventType,
				"recipient", job.Recipient,
				"business_ref", job.BusinessRef,
			)
			return nil
		}
		claimed = true
	}

	resp, err := p.Dispatcher.Dispatch(ctx, domain.DispatchRequest{
		EventType:     job.EventType,
		Recipient:     job.Recipient,
		TokenValues:   job.TokenValues,
		CorrelationID: job.CorrelationID,
	})
	if err != nil {
		if claimed {
			// Give the redriven message a fresh shot at the dedupe key.
			_ = p.Dedupe.ReleaseDedupe(ctx, job.EventType, job.Recipient, job.BusinessRef, day)
		}
		if errors.Is(err, domain.ErrUnknownEventType) {
			// Poison job; redriving it would loop forever.
			slog.Error("dispatch job references unknown event type", "event_type", job.EventType)
			return nil
		}
		return err
	}

	if !resp.Success {
		slog.Warn("dispatch job delivery failed",
			"event_type", job.EventType,
			"recipient", job.Recipient,
			"outcome", resp.Outcome,
			"message", resp.Message,
			"log_id", resp.DeliveryLogID,
		)
	}
	return nil
}
