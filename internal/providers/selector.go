package providers

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"dispatchd/internal/domain"
	"dispatchd/internal/settings"
)

// Selector resolves the adapter for a channel from the settings snapshot.
// Adapters are cheap per-dispatch structs over one shared HTTP client, so a
// hot-reloaded credential takes effect on the next dispatch.
type Selector struct {
	HTTP *resty.Client

	// Base URL overrides for tests and the mock provider. Empty means the
	// adapter's production endpoint.
	MeliPayamakBaseURL string
	KavenegarBaseURL   string
	SMSIrBaseURL       string
	IPPanelBaseURL     string
	TelegramBaseURL    string
}

func NewSelector(timeout time.Duration) *Selector {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	// Retries stay off: the dispatcher owns re-delivery so each attempt is
	// a discrete ledger row.
	return &Selector{HTTP: resty.New().SetTimeout(timeout).SetRetryCount(0)}
}

func (s *Selector) For(snap settings.Snapshot, channel domain.Channel) (Adapter, error) {
	switch channel {
	case domain.ChannelSMS:
		return s.sms(snap)
	case domain.ChannelTelegram:
		return s.telegram(snap)
	}
	return nil, fmt.Errorf("unsupported channel %q", channel)
}

func (s *Selector) sms(snap settings.Snapshot) (Adapter, error) {
	switch name := snap.SMSProvider(); name {
	case "melipayamak":
		key := snap.Get("melipayamak_api_key")
		if key == "" {
			return nil, ErrNotConfigured
		}
		return &MeliPayamak{APIKey: key, BaseURL: s.MeliPayamakBaseURL, HTTP: s.HTTP}, nil
	case "kavenegar":
		key := snap.Get("kavenegar_api_key")
		if key == "" {
			return nil, ErrNotConfigured
		}
		return &Kavenegar{APIKey: key, BaseURL: s.KavenegarBaseURL, HTTP: s.HTTP}, nil
	case "smsir":
		key := snap.Get("smsir_api_key")
		if key == "" {
			return nil, ErrNotConfigured
		}
		return &SMSIr{APIKey: key, BaseURL: s.SMSIrBaseURL, HTTP: s.HTTP}, nil
	case "ippanel":
		key := snap.Get("ippanel_api_key")
		if key == "" {
			return nil, ErrNotConfigured
		}
		return &IPPanel{
			APIKey:     key,
			FromNumber: snap.Get("ippanel_from_number"),
			BaseURL:    s.IPPanelBaseURL,
			HTTP:       s.HTTP,
		}, nil
	case "":
		return nil, ErrNotConfigured
	default:
		return nil, fmt.Errorf("unknown sms provider %q", name)
	}
}

func (s *Selector) telegram(snap settings.Snapshot) (Adapter, error) {
	token := snap.Get("telegram_bot_token")
	if token == "" {
		return nil, ErrNotConfigured
	}
	return &Telegram{
		BotToken:      token,
		DefaultChatID: snap.Get("telegram_default_chat_id"),
		BaseURL:       s.TelegramBaseURL,
		HTTP:          s.HTTP,
	}, nil
}

// CredsPresent reports whether the active SMS provider and the Telegram bot
// have credentials in the snapshot. Used by the health check; performs no
// network calls.
func CredsPresent(snap settings.Snapshot) (smsOK, telegramOK bool) {
	_, smsErr := (&Selector{}).sms(snap)
	return smsErr == nil, snap.Get("telegram_bot_token") != ""
}
