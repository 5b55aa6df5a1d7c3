package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"dispatchd/internal/dispatch"
	"dispatchd/internal/domain"
	"dispatchd/internal/ledger"
	"dispatchd/internal/providers"
	sqsqueue "dispatchd/internal/queue/sqs"
	"dispatchd/internal/settings"
)

type stubSettings struct{ snap settings.Snapshot }

func (s stubSettings) Snapshot(ctx context.Context) (settings.Snapshot, error) {
	return s.snap, nil
}

type stubAdapter struct {
	result domain.DeliveryResult
	calls  int
}

func (a *stubAdapter) Name() string { return "melipayamak" }

func (a *stubAdapter) Send(ctx context.Context, destination string, p providers.Payload) domain.DeliveryResult {
	a.calls++
	return a.result
}

type stubAdapters struct{ adapter *stubAdapter }

func (s stubAdapters) For(snap settings.Snapshot, channel domain.Channel) (providers.Adapter, error) {
	return s.adapter, nil
}

type memLedger struct {
	entries   []ledger.Entry
	appendErr error
}

func (l *memLedger) Append(ctx context.Context, e ledger.Entry) (int64, error) {
	if l.appendErr != nil {
		return 0, l.appendErr
	}
	e.ID = int64(len(l.entries) + 1)
	l.entries = append(l.entries, e)
	return e.ID, nil
}

func (l *memLedger) Get(ctx context.Context, id int64) (ledger.Entry, bool, error) {
	return ledger.Entry{}, false, nil
}

type memDeduper struct {
	claimed  map[string]bool
	released []string
}

func dedupeKey(eventType, recipient, businessRef string) string {
	return eventType + "|" + recipient + "|" + businessRef
}

func (d *memDeduper) ClaimDedupe(ctx context.Context, eventType, recipient, businessRef string, day time.Time) (bool, error) {
	if d.claimed == nil {
		d.claimed = make(map[string]bool)
	}
	k := dedupeKey(eventType, recipient, businessRef)
	if d.claimed[k] {
		return false, nil
	}
	d.claimed[k] = true
	return true, nil
}

func (d *memDeduper) ReleaseDedupe(ctx context.Context, eventType, recipient, businessRef string, day time.Time) error {
	k := dedupeKey(eventType, recipient, businessRef)
	delete(d.claimed, k)
	d.released = append(d.released, k)
	return nil
}

func newTestProcessor(adapter *stubAdapter, logs *memLedger, dedupe Deduper) *Processor {
	return &Processor{
		Dispatcher: &dispatch.Dispatcher{
			Settings: stubSettings{snap: settings.Fixed(map[string]string{
				"sms_provider":            "melipayamak",
				"melipayamak_api_key":     "key",
				"pattern_installment_due": "100",
			})},
			Adapters: stubAdapters{adapter: adapter},
			Ledger:   logs,
		},
		Dedupe: dedupe,
	}
}

func job() sqsqueue.DispatchJob {
	return sqsqueue.DispatchJob{
		EventType:   "installment_due",
		Recipient:   "09120000000",
		TokenValues: map[string]string{"name": "Ali", "amount": "100", "dueDate": "1404/01/01"},
		BusinessRef: "sale-42",
	}
}

func TestProcessDispatchesOnce(t *testing.T) {
	adapter := &stubAdapter{result: domain.DeliveryResult{Success: true}}
	logs := &memLedger{}
	p := newTestProcessor(adapter, logs, &memDeduper{})

	if err := p.Process(context.Background(), job()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adapter.calls != 1 || len(logs.entries) != 1 {
		t.Fatalf("expected one send and one row, got %d/%d", adapter.calls, len(logs.entries))
	}
}

func TestProcessSkipsDuplicate(t *testing.T) {
	adapter := &stubAdapter{result: domain.DeliveryResult{Success: true}}
	logs := &memLedger{}
	dedupe := &memDeduper{}
	p := newTestProcessor(adapter, logs, dedupe)

	if err := p.Process(context.Background(), job()); err != nil {
		t.Fatalf("first job: %v", err)
	}
	if err := p.Process(context.Background(), job()); err != nil {
		t.Fatalf("duplicate job: %v", err)
	}
	if adapter.calls != 1 {
		t.Fatalf("duplicate must not dispatch, got %d sends", adapter.calls)
	}
}

func TestProcessReleasesClaimOnHardError(t *testing.T) {
	adapter := &stubAdapter{result: domain.DeliveryResult{Success: true}}
	logs := &memLedger{appendErr: errors.New("pg down")}
	dedupe := &memDeduper{}
	p := newTestProcessor(adapter, logs, dedupe)

	if err := p.Process(context.Background(), job()); err == nil {
		t.Fatal("expected hard error to surface for SQS redrive")
	}
	if len(dedupe.released) != 1 {
		t.Fatal("claim must be released so the redriven message can retry")
	}
}

func TestProcessUnknownEventIsPoison(t *testing.T) {
	adapter := &stubAdapter{}
	dedupe := &memDeduper{}
	p := newTestProcessor(adapter, &memLedger{}, dedupe)

	j := job()
	j.EventType = "no_such_event"
	if err := p.Process(context.Background(), j); err != nil {
		t.Fatalf("unknown event must not redrive forever: %v", err)
	}
	if adapter.calls != 0 {
		t.Fatal("unknown event must not dispatch")
	}
}

func TestProcessDeliveryFailureDoesNotRedrive(t *testing.T) {
	adapter := &stubAdapter{result: domain.DeliveryResult{ErrorText: "melipayamak: rejected"}}
	logs := &memLedger{}
	p := newTestProcessor(adapter, logs, &memDeduper{})

	if err := p.Process(context.Background(), job()); err != nil {
		t.Fatalf("delivery failure is final, not retryable: %v", err)
	}
	if len(logs.entries) != 1 || logs.entries[0].Success {
		t.Fatalf("failed attempt must be recorded: %+v", logs.entries)
	}
}

func TestProcessWithoutBusinessRefSkipsDedupe(t *testing.T) {
	adapter := &stubAdapter{result: domain.DeliveryResult{Success: true}}
	dedupe := &memDeduper{}
	p := newTestProcessor(adapter, &memLedger{}, dedupe)

	j := job()
	j.BusinessRef = ""
	if err := p.Process(context.Background(), j); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dedupe.claimed) != 0 {
		t.Fatal("no business ref means no dedupe claim")
	}
}

func TestProcessNilDeduper(t *testing.T) {
	adapter := &stubAdapter{result: domain.DeliveryResult{Success: true}}
	p := newTestProcessor(adapter, &memLedger{}, nil)

	if err := p.Process(context.Background(), job()); err != nil {
		t.Fatalf("nil deduper disables the guard: %v", err)
	}
	if adapter.calls != 1 {
		t.Fatalf("expected one send, got %d", adapter.calls)
	}
}
