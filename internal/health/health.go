// Package health answers two operator questions: is every template
// configured (without sending anything), and does the configuration actually
// deliver (by test-sending many templates to one recipient).
package health

import (
	"context"

	"dispatchd/internal/catalog"
	"dispatchd/internal/dispatch"
	"dispatchd/internal/providers"

	"golang.org/x/time/rate"
)

type Aggregator struct {
	Settings   dispatch.SettingsSource
	Dispatcher *dispatch.Dispatcher

	// Defs defaults to the built-in catalog.
	Defs []catalog.TemplateDefinition
	// Concurrency bounds the bulk-test fan-out. Defaults to 4.
	Concurrency int
	// Limiter paces bulk-test sends so a batch cannot trip a provider's
	// rate limits.
	Limiter *rate.Limiter
}

type Item struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	Category   string `json:"category"`
	Channel    string `json:"channel"`
	Configured bool   `json:"configured"`
	// ProviderID is the pattern id (SMS) or template text (Telegram).
	ProviderID string `json:"providerId,omitempty"`
}

type Report struct {
	Provider        string `json:"provider"`
	SMSCredsOK      bool   `json:"smsCredsOk"`
	TelegramCredsOK bool   `json:"telegramCredsOk"`
	Items           []Item `json:"items"`
}

// HealthCheck audits the configuration of every registered template plus the
// provider-level credentials. It never performs a network send.
func (a *Aggregator) HealthCheck(ctx context.Context) (Report, error) {
	snap, err := a.Settings.Snapshot(ctx)
	if err != nil {
		return Report{}, err
	}

	reg := catalog.NewRegistry(a.defs(), snap)
	smsOK, telegramOK := providers.CredsPresent(snap)

	report := Report{
		Provider:        snap.SMSProvider(),
		SMSCredsOK:      smsOK,
		TelegramCredsOK: telegramOK,
	}
	for _, def := range reg.All() {
		report.Items = append(report.Items, Item{
			Key:        def.Key,
			Label:      def.Label,
			Category:   def.Category,
			Channel:    string(def.Channel),
			Configured: def.Configured(),
			ProviderID: def.ProviderRef(),
		})
	}
	return report, nil
}

func (a *Aggregator) defs() []catalog.TemplateDefinition {
	if a.Defs != nil {
		return a.Defs
	}
	return catalog.Builtin()
}

func (a *Aggregator) concurrency() int {
	if a.Concurrency > 0 {
		return a.Concurrency
	}
	return 4
}
