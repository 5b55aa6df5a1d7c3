package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"dispatchd/internal/domain"
)

// Telegram posts the resolved template text through the bot sendMessage
// method. Implemented against the raw bot API rather than a bot framework
// because the ledger needs the HTTP status and body of every attempt.
type Telegram struct {
	BotToken string
	// DefaultChatID receives the message when the dispatch names no
	// recipient, for operator notifications routed to a fixed channel.
	DefaultChatID string
	BaseURL       string
	HTTP          *resty.Client
}

type telegramRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

func (c *Telegram) Name() string { return "telegram" }

func (c *Telegram) Send(ctx context.Context, destination string, p Payload) domain.DeliveryResult {
	start := time.Now()

	if destination == "" {
		destination = c.DefaultChatID
	}
	req := telegramRequest{ChatID: destination, Text: p.Text}
	if req.ChatID == "" {
		return domain.DeliveryResult{
			Duration:  time.Since(start),
			ErrorText: "telegram: no chat id and no default configured",
		}
	}

	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	resp, err := c.HTTP.R().
		SetContext(ctx).
		SetBody(req).
		Post(baseURL + "/bot" + c.BotToken + "/sendMessage")
	if err != nil {
		return TransportFailure(req, start, err)
	}

	var out telegramResponse
	_ = json.Unmarshal(resp.Body(), &out)

	res := domain.DeliveryResult{
		HTTPStatus:  resp.StatusCode(),
		Duration:    time.Since(start),
		RawResponse: resp.String(),
		Parsed:      out,
		Request:     req,
	}
	if out.OK {
		res.Success = true
	} else {
		res.ErrorText = fmt.Sprintf("telegram: %d %s", out.ErrorCode, nonEmpty(out.Description, "send rejected"))
	}
	return res
}
