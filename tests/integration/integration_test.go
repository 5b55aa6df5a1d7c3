//go:build integration
// +build integration

package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"dispatchd/internal/dispatch"
	"dispatchd/internal/domain"
	"dispatchd/internal/ledger"
	"dispatchd/internal/providers"
	"dispatchd/internal/settings"
)

func TestDispatchEndToEnd(t *testing.T) {
	ctx := context.Background()
	db, cleanup := setupTestDB(t)
	defer cleanup()

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"recId":777,"status":"ok"}`))
	}))
	defer provider.Close()

	seedSettings(t, db, map[string]string{
		"sms_provider":                  "melipayamak",
		"melipayamak_api_key":           "test-key",
		"pattern_installment_completed": "55555",
	})

	logs := ledger.New(db)
	sel := providers.NewSelector(5 * time.Second)
	sel.MeliPayamakBaseURL = provider.URL

	d := &dispatch.Dispatcher{
		Settings: settings.NewStore(db),
		Adapters: sel,
		Ledger:   logs,
	}

	resp, err := d.Dispatch(ctx, domain.DispatchRequest{
		EventType:   "installment_completed",
		Recipient:   "09120000000",
		TokenValues: map[string]string{"name": "Ali", "saleId": "42", "total": "1,000,000"},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !resp.Success || resp.Outcome != domain.OutcomeSent {
		t.Fatalf("unexpected response: %+v", resp)
	}

	entry, found, err := logs.Get(ctx, resp.DeliveryLogID)
	if err != nil || !found {
		t.Fatalf("get entry: found=%v err=%v", found, err)
	}
	if !entry.Success || entry.Provider != "melipayamak" || entry.PatternOrTemplateID != "55555" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.HTTPStatus != http.StatusOK || entry.RawResponse == "" {
		t.Fatalf("provider exchange not captured: %+v", entry)
	}

	// Resend writes a second linked row with identical snapshot bytes.
	resent, err := d.Resend(ctx, resp.DeliveryLogID)
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	second, found, err := logs.Get(ctx, resent.DeliveryLogID)
	if err != nil || !found {
		t.Fatalf("get resent entry: found=%v err=%v", found, err)
	}
	if second.RelatedLogID == nil || *second.RelatedLogID != entry.ID {
		t.Fatalf("resend not linked: %+v", second)
	}
	if string(second.TokensSnapshot) != string(entry.TokensSnapshot) {
		t.Fatal("resend must replay the exact snapshot bytes")
	}
}

func TestLedgerQueryFilters(t *testing.T) {
	ctx := context.Background()
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logs := ledger.New(db)
	now := time.Now().UTC()
	rows := []ledger.Entry{
		{CreatedAt: now.Add(-2 * time.Minute), EventType: "repair_ready", Recipient: "09120000001", Success: true},
		{CreatedAt: now.Add(-1 * time.Minute), EventType: "repair_ready", Recipient: "09120000002", Success: false, ErrorText: "rejected"},
		{CreatedAt: now, EventType: "check_due", Recipient: "09120000001", Success: true},
	}
	for _, e := range rows {
		if _, err := logs.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := logs.Query(ctx, ledger.Filter{EventType: "repair_ready"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 repair_ready rows, got %d", len(got))
	}
	if !got[0].CreatedAt.After(got[1].CreatedAt) {
		t.Fatal("expected newest first")
	}

	failed := false
	got, err = logs.Query(ctx, ledger.Filter{Success: &failed, RecipientContains: "0002"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].ErrorText != "rejected" {
		t.Fatalf("unexpected rows: %+v", got)
	}
}

func TestDedupeClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logs := ledger.New(db)
	day := time.Now().UTC()

	ok, err := logs.ClaimDedupe(ctx, "installment_due", "0912", "sale-42", day)
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, err = logs.ClaimDedupe(ctx, "installment_due", "0912", "sale-42", day)
	if err != nil || ok {
		t.Fatalf("duplicate claim must fail: ok=%v err=%v", ok, err)
	}

	if err := logs.ReleaseDedupe(ctx, "installment_due", "0912", "sale-42", day); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = logs.ClaimDedupe(ctx, "installment_due", "0912", "sale-42", day)
	if err != nil || !ok {
		t.Fatalf("claim after release: ok=%v err=%v", ok, err)
	}

	// A different business record never collides.
	ok, err = logs.ClaimDedupe(ctx, "installment_due", "0912", "sale-43", day)
	if err != nil || !ok {
		t.Fatalf("distinct ref claim: ok=%v err=%v", ok, err)
	}
}

func TestSettingsStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := settings.NewStore(db)
	if err := store.Put(ctx, "sms_provider", "kavenegar"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, "sms_provider", "smsir"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	snap, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.SMSProvider() != "smsir" {
		t.Fatalf("expected upserted value, got %q", snap.SMSProvider())
	}
}

func seedSettings(t *testing.T, db *pgxpool.Pool, values map[string]string) {
	t.Helper()
	store := settings.NewStore(db)
	for k, v := range values {
		if err := store.Put(context.Background(), k, v); err != nil {
			t.Fatalf("seed setting %q: %v", k, err)
		}
	}
}

func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN not set")
	}

	schema := fmt.Sprintf("test_%d", time.Now().UnixNano())
	admin, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect admin db: %v", err)
	}

	if _, err := admin.Exec(context.Background(), "CREATE SCHEMA "+schema); err != nil {
		admin.Close()
		t.Fatalf("create schema: %v", err)
	}

	dbDSN, err := withSearchPath(dsn, schema)
	if err != nil {
		admin.Close()
		t.Fatalf("build dsn: %v", err)
	}

	db, err := pgxpool.New(context.Background(), dbDSN)
	if err != nil {
		admin.Close()
		t.Fatalf("connect test db: %v", err)
	}

	sqlPath := filepath.Join("..", "..", "db", "schema.sql")
	sqlBytes, err := os.ReadFile(sqlPath)
	if err != nil {
		db.Close()
		admin.Close()
		t.Fatalf("read schema: %v", err)
	}

	if _, err := db.Exec(context.Background(), string(sqlBytes)); err != nil {
		db.Close()
		admin.Close()
		t.Fatalf("apply schema: %v", err)
	}

	cleanup := func() {
		db.Close()
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close()
	}

	return db, cleanup
}

func withSearchPath(dsn, schema string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	q := u.Query()
	opts := q.Get("options")
	if opts != "" {
		opts = opts + " -c search_path=" + schema
	} else {
		opts = "-c search_path=" + schema
	}
	q.Set("options", opts)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
