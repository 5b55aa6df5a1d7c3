package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// Append inserts one attempt and returns its id. A failure here propagates
// to the caller: losing the audit trail is itself a defect, so it is never
// swallowed into a delivery result.
func (s *Store) Append(ctx context.Context, e Entry) (int64, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO delivery_logs
			(created_at, provider, event_type, recipient, pattern_or_template_id, success,
			 tokens_snapshot, request_snapshot, response_snapshot, raw_response,
			 http_status, duration_ms, correlation_id, error_text, related_log_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING id
	`, e.CreatedAt, e.Provider, e.EventType, e.Recipient, e.PatternOrTemplateID, e.Success,
		e.TokensSnapshot, e.RequestSnapshot, e.ResponseSnapshot, e.RawResponse,
		e.HTTPStatus, e.DurationMs, e.CorrelationID, nullIfEmpty(e.ErrorText), e.RelatedLogID)

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("append delivery log: %w", err)
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, id int64) (Entry, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT id, created_at, provider, event_type, recipient, pattern_or_template_id, success,
		       tokens_snapshot, request_snapshot, response_snapshot, raw_response,
		       http_status, duration_ms, correlation_id, COALESCE(error_text,''), related_log_id
		FROM delivery_logs WHERE id=$1
	`, id)

	var e Entry
	err := row.Scan(&e.ID, &e.CreatedAt, &e.Provider, &e.EventType, &e.Recipient, &e.PatternOrTemplateID, &e.Success,
		&e.TokensSnapshot, &e.RequestSnapshot, &e.ResponseSnapshot, &e.RawResponse,
		&e.HTTPStatus, &e.DurationMs, &e.CorrelationID, &e.ErrorText, &e.RelatedLogID)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	return e, true, nil
}

// Query returns entries newest first.
func (s *Store) Query(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.Success != nil {
		args = append(args, *f.Success)
		where = append(where, "success=$"+strconv.Itoa(len(args)))
	}
	if f.EventType != "" {
		args = append(args, f.EventType)
		where = append(where, "event_type=$"+strconv.Itoa(len(args)))
	}
	if f.RecipientContains != "" {
		args = append(args, "%"+f.RecipientContains+"%")
		where = append(where, "recipient LIKE $"+strconv.Itoa(len(args)))
	}

	q := `
		SELECT id, created_at, provider, event_type, recipient, pattern_or_template_id, success,
		       tokens_snapshot, request_snapshot, response_snapshot, raw_response,
		       http_status, duration_ms, correlation_id, COALESCE(error_text,''), related_log_id
		FROM delivery_logs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	q += " ORDER BY created_at DESC, id DESC LIMIT $" + strconv.Itoa(len(args))

	rows, err := s.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.Provider, &e.EventType, &e.Recipient, &e.PatternOrTemplateID, &e.Success,
			&e.TokensSnapshot, &e.RequestSnapshot, &e.ResponseSnapshot, &e.RawResponse,
			&e.HTTPStatus, &e.DurationMs, &e.CorrelationID, &e.ErrorText, &e.RelatedLogID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ClaimDedupe records that an automatic reminder for (eventType, recipient,
// businessRef) fired on the given day. Returns false when an earlier claim
// exists, which is the signal to skip a duplicate scheduler delivery.
func (s *Store) ClaimDedupe(ctx context.Context, eventType, recipient, businessRef string, day time.Time) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		INSERT INTO delivery_dedupe (event_type, recipient, business_ref, day)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (event_type, recipient, business_ref, day) DO NOTHING
	`, eventType, recipient, businessRef, day.UTC().Truncate(24*time.Hour))
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// ReleaseDedupe drops a claim so a redriven queue message can try again.
func (s *Store) ReleaseDedupe(ctx context.Context, eventType, recipient, businessRef string, day time.Time) error {
	_, err := s.DB.Exec(ctx, `
		DELETE FROM delivery_dedupe
		WHERE event_type=$1 AND recipient=$2 AND business_ref=$3 AND day=$4
	`, eventType, recipient, businessRef, day.UTC().Truncate(24*time.Hour))
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
