package domain

import (
	"errors"
	"time"
)

// Channel selects the delivery transport for a template.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelTelegram Channel = "telegram"
)

// Outcome classifies a finished dispatch attempt. NotSent means the attempt
// was rejected before any network call (missing configuration or a missing
// required token); Failed means the provider was called and the transport
// broke or the provider refused.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeNotSent Outcome = "not_sent"
)

type DispatchRequest struct {
	EventType     string            `json:"eventType" validate:"required"`
	Recipient     string            `json:"recipient" validate:"required"`
	TokenValues   map[string]string `json:"tokenValues"`
	CorrelationID string            `json:"correlationId,omitempty"`

	// RawTokens, when set, is stored verbatim as the ledger tokens snapshot.
	// Resend sets it from the prior row so the snapshot stays byte-identical.
	RawTokens    []byte `json:"-"`
	RelatedLogID *int64 `json:"-"`
}

func (r DispatchRequest) Validate() error {
	if r.EventType == "" || r.Recipient == "" {
		return ErrMissingFields
	}
	return nil
}

var ErrMissingFields = errors.New("missing required fields")

type DispatchResponse struct {
	Success       bool    `json:"success"`
	Message       string  `json:"message"`
	Outcome       Outcome `json:"outcome"`
	DeliveryLogID int64   `json:"deliveryLogId"`
}

// DeliveryResult is the uniform outcome of a single provider attempt.
// Created once per attempt and never mutated; a resend produces a new one.
type DeliveryResult struct {
	Success    bool
	HTTPStatus int
	Duration   time.Duration
	// Raw provider response body, preserved for the ledger.
	RawResponse string
	// Parsed provider response, opaque to the dispatcher.
	Parsed any
	// Outbound request description, preserved for the ledger.
	Request   any
	ErrorText string
}

var (
	// ErrUnknownEventType is a programmer error: the event type was never
	// registered in the catalog. Surfaced as a hard error, not recorded as
	// an attempt.
	ErrUnknownEventType = errors.New("unknown event type")

	ErrLogNotFound = errors.New("delivery log entry not found")
)
