package catalog

import "dispatchd/internal/domain"

// Builtin returns the template definitions this service knows how to send.
// Pattern ids and Telegram texts are configured externally; everything else
// is fixed in code because the token layout must match the provider-side
// pattern registration.
func Builtin() []TemplateDefinition {
	return []TemplateDefinition{
		{
			Key:      "installment_due",
			Label:    "Installment due reminder",
			Channel:  domain.ChannelSMS,
			Category: "installments",
			Tokens:   []string{"name", "amount", "dueDate"},
		},
		{
			Key:      "installment_overdue",
			Label:    "Installment overdue notice",
			Channel:  domain.ChannelSMS,
			Category: "installments",
			Tokens:   []string{"name", "amount", "daysLate"},
		},
		{
			Key:      "installment_completed",
			Label:    "Installments fully paid",
			Channel:  domain.ChannelSMS,
			Category: "installments",
			Tokens:   []string{"name", "saleId", "total"},
		},
		{
			Key:      "payment_received",
			Label:    "Payment received",
			Channel:  domain.ChannelSMS,
			Category: "sales",
			Tokens:   []string{"name", "amount", "trackingCode"},
		},
		{
			Key:      "repair_received",
			Label:    "Repair item received",
			Channel:  domain.ChannelSMS,
			Category: "repairs",
			Tokens:   []string{"name", "device", "receiptId"},
		},
		{
			Key:      "repair_ready",
			Label:    "Repair ready for pickup",
			Channel:  domain.ChannelSMS,
			Category: "repairs",
			Tokens:   []string{"name", "device"},
		},
		{
			Key:      "check_due",
			Label:    "Check maturity reminder",
			Channel:  domain.ChannelSMS,
			Category: "checks",
			Tokens:   []string{"name", "amount", "dueDate"},
		},
		{
			Key:      "tg_installment_due",
			Label:    "Installment due (Telegram)",
			Channel:  domain.ChannelTelegram,
			Category: "installments",
		},
		{
			Key:      "tg_payment_received",
			Label:    "Payment received (Telegram)",
			Channel:  domain.ChannelTelegram,
			Category: "sales",
		},
		{
			Key:      "tg_repair_ready",
			Label:    "Repair ready (Telegram)",
			Channel:  domain.ChannelTelegram,
			Category: "repairs",
		},
		{
			Key:      "tg_check_due",
			Label:    "Check maturity (Telegram)",
			Channel:  domain.ChannelTelegram,
			Category: "checks",
		},
	}
}
