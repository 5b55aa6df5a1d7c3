// Package ledger is the append-only delivery history. Rows are never updated
// or deleted; a resend is a new row pointing at the original through
// RelatedLogID.
package ledger

import "time"

type Entry struct {
	ID                  int64     `json:"id"`
	CreatedAt           time.Time `json:"createdAt"`
	Provider            string    `json:"provider"`
	EventType           string    `json:"eventType"`
	Recipient           string    `json:"recipient"`
	PatternOrTemplateID string    `json:"patternOrTemplateId"`
	Success             bool      `json:"success"`

	// TokensSnapshot is the serialized token map exactly as dispatched.
	// Resend replays these bytes, not current business state.
	TokensSnapshot   []byte `json:"tokensSnapshot"`
	RequestSnapshot  []byte `json:"requestSnapshot"`
	ResponseSnapshot []byte `json:"responseSnapshot"`
	RawResponse      string `json:"rawResponse"`

	HTTPStatus    int    `json:"httpStatus"`
	DurationMs    int64  `json:"durationMs"`
	CorrelationID string `json:"correlationId"`
	ErrorText     string `json:"errorText,omitempty"`
	RelatedLogID  *int64 `json:"relatedLogId,omitempty"`
}

// Filter narrows Query results. Zero values mean "any".
type Filter struct {
	Success           *bool
	EventType         string
	RecipientContains string
	Limit             int
}
