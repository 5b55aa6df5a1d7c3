package catalog

import (
	"dispatchd/internal/domain"
)

// TemplateDefinition describes one message kind. For SMS templates the token
// order is load-bearing: position is the provider argument index. For Telegram
// templates the Text carries {name}-style placeholders and order is
// irrelevant.
//
// PatternID and Text are filled from the settings snapshot when the registry
// is built, so a definition handed to the dispatcher is immutable for the
// duration of that dispatch.
type TemplateDefinition struct {
	Key      string
	Label    string
	Channel  domain.Channel
	Category string

	// Tokens are the ordered token labels declared for SMS patterns.
	// Named-parameter providers reuse them as parameter names.
	Tokens []string

	PatternID string // SMS: provider-registered pattern id
	Text      string // Telegram: raw template text
}

// Configured reports whether the externally-supplied provider identifier is
// present. An unconfigured template is never sent; the dispatcher records a
// not_sent outcome instead.
func (d TemplateDefinition) Configured() bool {
	switch d.Channel {
	case domain.ChannelSMS:
		return d.PatternID != ""
	case domain.ChannelTelegram:
		return d.Text != ""
	}
	return false
}

// ProviderRef is the pattern id or template text shown on operator surfaces.
func (d TemplateDefinition) ProviderRef() string {
	if d.Channel == domain.ChannelSMS {
		return d.PatternID
	}
	return d.Text
}
