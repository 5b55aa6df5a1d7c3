package settings

import "strings"

// Snapshot is an immutable view of the live configuration, read once at the
// start of a dispatch so a template definition cannot change mid-flight.
type Snapshot struct {
	values map[string]string
}

func Fixed(values map[string]string) Snapshot {
	m := make(map[string]string, len(values))
	for k, v := range values {
		m[k] = v
	}
	return Snapshot{values: m}
}

func (s Snapshot) Get(key string) string {
	return strings.TrimSpace(s.values[key])
}

// SMSProvider returns the configured SMS provider name (melipayamak,
// kavenegar, smsir, ippanel). Empty means no provider selected.
func (s Snapshot) SMSProvider() string {
	return s.Get("sms_provider")
}

// PatternID returns the provider-registered pattern id for an SMS template.
func (s Snapshot) PatternID(templateKey string) string {
	return s.Get("pattern_" + templateKey)
}

// TemplateText returns the free-text body for a Telegram template.
func (s Snapshot) TemplateText(templateKey string) string {
	return s.Get("text_" + templateKey)
}
