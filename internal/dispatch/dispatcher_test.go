package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"dispatchd/internal/domain"
	"dispatchd/internal/ledger"
	"dispatchd/internal/providers"
	"dispatchd/internal/settings"
)

type stubSettings struct {
	snap settings.Snapshot
	err  error
}

func (s stubSettings) Snapshot(ctx context.Context) (settings.Snapshot, error) {
	return s.snap, s.err
}

type stubAdapter struct {
	name   string
	result domain.DeliveryResult
	calls  int
	// last call arguments
	destination string
	payload     providers.Payload
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) Send(ctx context.Context, destination string, p providers.Payload) domain.DeliveryResult {
	a.calls++
	a.destination = destination
	a.payload = p
	return a.result
}

type stubAdapters struct {
	adapter *stubAdapter
	err     error
}

func (s stubAdapters) For(snap settings.Snapshot, channel domain.Channel) (providers.Adapter, error) {
	if s.err != nil {
		return nil, s.err
	}
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
	for _, e := range l.entries {
		if e.ID == id {
			return e, true, nil
		}
	}
	return ledger.Entry{}, false, nil
}

func configuredSnap() settings.Snapshot {
	return settings.Fixed(map[string]string{
		"sms_provider":                  "melipayamak",
		"melipayamak_api_key":           "key",
		"pattern_installment_completed": "55555",
		"text_tg_payment_received":      "Payment of {amount} from {name} received.",
	})
}

func newTestDispatcher(adapter *stubAdapter, logs *memLedger) *Dispatcher {
	return &Dispatcher{
		Settings: stubSettings{snap: configuredSnap()},
		Adapters: stubAdapters{adapter: adapter},
		Ledger:   logs,
	}
}

func TestDispatchSuccess(t *testing.T) {
	adapter := &stubAdapter{name: "melipayamak", result: domain.DeliveryResult{Success: true, HTTPStatus: 200}}
	logs := &memLedger{}
	d := newTestDispatcher(adapter, logs)

	resp, err := d.Dispatch(context.Background(), domain.DispatchRequest{
		EventType: "installment_completed",
		Recipient: "09120000000",
		TokenValues: map[string]string{
			"name":   "Ali",
			"saleId": "42",
			"total":  "1,000,000",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success || resp.Outcome != domain.OutcomeSent {
		t.Fatalf("expected sent outcome, got %+v", resp)
	}
	if resp.Message != "sent" {
		t.Fatalf("expected message \"sent\", got %q", resp.Message)
	}

	if adapter.calls != 1 {
		t.Fatalf("expected exactly one send, got %d", adapter.calls)
	}
	if adapter.destination != "09120000000" {
		t.Fatalf("unexpected destination %q", adapter.destination)
	}
	wantArgs := []string{"Ali", "42", "1,000,000"}
	for i, w := range wantArgs {
		if adapter.payload.Args[i] != w {
			t.Fatalf("arg %d: expected %q, got %q", i, w, adapter.payload.Args[i])
		}
	}
	if adapter.payload.PatternID != "55555" {
		t.Fatalf("expected pattern id from settings, got %q", adapter.payload.PatternID)
	}

	if len(logs.entries) != 1 {
		t.Fatalf("expected one ledger row, got %d", len(logs.entries))
	}
	e := logs.entries[0]
	if !e.Success || e.Provider != "melipayamak" || e.EventType != "installment_completed" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.CorrelationID == "" {
		t.Fatal("a correlation id must be assigned when the caller supplied none")
	}
	var tokens map[string]string
	if err := json.Unmarshal(e.TokensSnapshot, &tokens); err != nil || tokens["name"] != "Ali" {
		t.Fatalf("tokens snapshot not stored: %s", e.TokensSnapshot)
	}
	if resp.DeliveryLogID != e.ID {
		t.Fatalf("response log id %d != stored id %d", resp.DeliveryLogID, e.ID)
	}
}

func TestDispatchNormalizesSMSRecipient(t *testing.T) {
	adapter := &stubAdapter{name: "melipayamak", result: domain.DeliveryResult{Success: true}}
	logs := &memLedger{}
	d := newTestDispatcher(adapter, logs)

	_, err := d.Dispatch(context.Background(), domain.DispatchRequest{
		EventType:   "installment_completed",
		Recipient:   " 0912 000 0000 ",
		TokenValues: map[string]string{"name": "a", "saleId": "b", "total": "c"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adapter.destination != "09120000000" {
		t.Fatalf("recipient not normalized: %q", adapter.destination)
	}
	if logs.entries[0].Recipient != "09120000000" {
		t.Fatalf("ledger row not normalized: %q", logs.entries[0].Recipient)
	}
}

func TestDispatchUnknownEventType(t *testing.T) {
	adapter := &stubAdapter{name: "melipayamak"}
	logs := &memLedger{}
	d := newTestDispatcher(adapter, logs)

	_, err := d.Dispatch(context.Background(), domain.DispatchRequest{
		EventType: "no_such_event",
		Recipient: "0912",
	})
	if !errors.Is(err, domain.ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", err)
	}
	if adapter.calls != 0 {
		t.Fatal("unknown event must not reach an adapter")
	}
	if len(logs.entries) != 0 {
		t.Fatal("unknown event must not be recorded as an attempt")
	}
}

func TestDispatchUnconfiguredTemplate(t *testing.T) {
	adapter := &stubAdapter{name: "melipayamak"}
	logs := &memLedger{}
	d := newTestDispatcher(adapter, logs)

	// installment_due has no pattern id in the snapshot.
	resp, err := d.Dispatch(context.Background(), domain.DispatchRequest{
		EventType:   "installment_due",
		Recipient:   "0912",
		TokenValues: map[string]string{"name": "Ali", "amount": "1", "dueDate": "1404/01/01"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Success || resp.Outcome != domain.OutcomeNotSent {
		t.Fatalf("expected not_sent, got %+v", resp)
	}
	if adapter.calls != 0 {
		t.Fatal("unconfigured template must not reach an adapter")
	}
	if len(logs.entries) != 1 {
		t.Fatal("not_sent attempts are still recorded")
	}
	if !strings.Contains(logs.entries[0].ErrorText, "not configured") {
		t.Fatalf("unexpected error text: %q", logs.entries[0].ErrorText)
	}
}

func TestDispatchMissingToken(t *testing.T) {
	adapter := &stubAdapter{name: "melipayamak"}
	logs := &memLedger{}
	d := newTestDispatcher(adapter, logs)

	resp, err := d.Dispatch(context.Background(), domain.DispatchRequest{
		EventType:   "installment_completed",
		Recipient:   "0912",
		TokenValues: map[string]string{"name": "Ali"}, // saleId and total absent
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Outcome != domain.OutcomeNotSent {
		t.Fatalf("expected not_sent, got %q", resp.Outcome)
	}
	if adapter.calls != 0 {
		t.Fatal("a partially filled pattern must never reach the provider")
	}
	if !strings.Contains(resp.Message, "saleId") {
		t.Fatalf("expected missing token named in message, got %q", resp.Message)
	}
}

func TestDispatchProviderNotConfigured(t *testing.T) {
	logs := &memLedger{}
	d := &Dispatcher{
		Settings: stubSettings{snap: configuredSnap()},
		Adapters: stubAdapters{err: providers.ErrNotConfigured},
		Ledger:   logs,
	}

	resp, err := d.Dispatch(context.Background(), domain.DispatchRequest{
		EventType: "installment_completed",
		Recipient: "0912",
		TokenValues: map[string]string{
			"name": "Ali", "saleId": "1", "total": "2",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Outcome != domain.OutcomeNotSent {
		t.Fatalf("expected not_sent, got %q", resp.Outcome)
	}
	if resp.Message != "provider not configured" {
		t.Fatalf("unexpected message %q", resp.Message)
	}
}

func TestDispatchTelegramTemplate(t *testing.T) {
	adapter := &stubAdapter{name: "telegram", result: domain.DeliveryResult{Success: true}}
	logs := &memLedger{}
	d := newTestDispatcher(adapter, logs)

	resp, err := d.Dispatch(context.Background(), domain.DispatchRequest{
		EventType:   "tg_payment_received",
		Recipient:   "99887766",
		TokenValues: map[string]string{"amount": "500", "name": "Ali"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if adapter.payload.Text != "Payment of 500 from Ali received." {
		t.Fatalf("unexpected resolved text %q", adapter.payload.Text)
	}
	if logs.entries[0].Provider != "telegram" {
		t.Fatalf("expected telegram provider label, got %q", logs.entries[0].Provider)
	}
}

func TestDispatchDeliveryFailureIsNotAnError(t *testing.T) {
	adapter := &stubAdapter{
		name:   "melipayamak",
		result: domain.DeliveryResult{HTTPStatus: 200, ErrorText: "melipayamak: blocked number"},
	}
	logs := &memLedger{}
	d := newTestDispatcher(adapter, logs)

	resp, err := d.Dispatch(context.Background(), domain.DispatchRequest{
		EventType:   "installment_completed",
		Recipient:   "0912",
		TokenValues: map[string]string{"name": "a", "saleId": "b", "total": "c"},
	})
	if err != nil {
		t.Fatalf("delivery failure must not surface as an error: %v", err)
	}
	if resp.Success || resp.Outcome != domain.OutcomeFailed {
		t.Fatalf("expected failed outcome, got %+v", resp)
	}
	if resp.Message != "melipayamak: blocked number" {
		t.Fatalf("unexpected message %q", resp.Message)
	}
}

func TestDispatchLedgerFailurePropagates(t *testing.T) {
	adapter := &stubAdapter{name: "melipayamak", result: domain.DeliveryResult{Success: true}}
	logs := &memLedger{appendErr: errors.New("pg down")}
	d := newTestDispatcher(adapter, logs)

	_, err := d.Dispatch(context.Background(), domain.DispatchRequest{
		EventType:   "installment_completed",
		Recipient:   "0912",
		TokenValues: map[string]string{"name": "a", "saleId": "b", "total": "c"},
	})
	if err == nil || !strings.Contains(err.Error(), "pg down") {
		t.Fatalf("expected ledger error to propagate, got %v", err)
	}
}

func TestResendReplaysSnapshotBytes(t *testing.T) {
	adapter := &stubAdapter{name: "melipayamak", result: domain.DeliveryResult{Success: true}}
	logs := &memLedger{}
	d := newTestDispatcher(adapter, logs)

	// Snapshot bytes with non-canonical formatting; a re-marshal would not
	// reproduce them.
	raw := []byte(`{"name":"Ali", "saleId":"42", "total":"1,000,000"}`)
	first, err := d.Dispatch(context.Background(), domain.DispatchRequest{
		EventType:   "installment_completed",
		Recipient:   "0912",
		TokenValues: map[string]string{"name": "Ali", "saleId": "42", "total": "1,000,000"},
		RawTokens:   raw,
	})
	if err != nil {
		t.Fatalf("first dispatch: %v", err)
	}

	resp, err := d.Resend(context.Background(), first.DeliveryLogID)
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected resend success, got %+v", resp)
	}

	if len(logs.entries) != 2 {
		t.Fatalf("expected two ledger rows, got %d", len(logs.entries))
	}
	second := logs.entries[1]
	if string(second.TokensSnapshot) != string(raw) {
		t.Fatalf("tokens snapshot must be byte-identical: %s", second.TokensSnapshot)
	}
	if second.RelatedLogID == nil || *second.RelatedLogID != first.DeliveryLogID {
		t.Fatalf("resend row must link to the original, got %v", second.RelatedLogID)
	}
	if adapter.payload.Args[2] != "1,000,000" {
		t.Fatalf("resend must resolve from the snapshot values, got %v", adapter.payload.Args)
	}
}

func TestResendUnknownLog(t *testing.T) {
	d := newTestDispatcher(&stubAdapter{name: "melipayamak"}, &memLedger{})

	_, err := d.Resend(context.Background(), 404)
	if !errors.Is(err, domain.ErrLogNotFound) {
		t.Fatalf("expected ErrLogNotFound, got %v", err)
	}
}

func TestDispatchCancelledContext(t *testing.T) {
	adapter := &stubAdapter{name: "melipayamak", result: domain.DeliveryResult{ErrorText: "context canceled"}}
	logs := &memLedger{}
	d := newTestDispatcher(adapter, logs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := d.Dispatch(ctx, domain.DispatchRequest{
		EventType:   "installment_completed",
		Recipient:   "0912",
		TokenValues: map[string]string{"name": "a", "saleId": "b", "total": "c"},
	})
	if err != nil {
		t.Fatalf("cancelled delivery must still produce a logged outcome: %v", err)
	}
	if resp.Outcome != domain.OutcomeFailed {
		t.Fatalf("expected failed outcome, got %q", resp.Outcome)
	}
	if !strings.HasPrefix(resp.Message, "cancelled: ") {
		t.Fatalf("expected cancelled prefix, got %q", resp.Message)
	}
	if len(logs.entries) != 1 {
		t.Fatal("the attempt must be recorded despite the cancelled caller")
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	adapter := &stubAdapter{
		name:   "melipayamak",
		result: domain.DeliveryResult{ErrorText: "melipayamak: http 500"},
	}
	logs := &memLedger{}
	d := newTestDispatcher(adapter, logs)
	d.Breakers = NewBreakerSet()

	req := domain.DispatchRequest{
		EventType:   "installment_completed",
		Recipient:   "0912",
		TokenValues: map[string]string{"name": "a", "saleId": "b", "total": "c"},
	}
	for i := 0; i < 10; i++ {
		if _, err := d.Dispatch(context.Background(), req); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	if adapter.calls != 10 {
		t.Fatalf("expected 10 adapter calls before the trip, got %d", adapter.calls)
	}

	resp, err := d.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("open-circuit dispatch: %v", err)
	}
	if adapter.calls != 10 {
		t.Fatal("open circuit must not reach the adapter")
	}
	if !strings.Contains(resp.Message, "circuit open") {
		t.Fatalf("expected circuit-open message, got %q", resp.Message)
	}
}
