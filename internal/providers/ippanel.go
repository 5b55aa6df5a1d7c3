package providers

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"dispatchd/internal/domain"
)

// IPPanel sends pattern SMS through the edge API. Patterns are identified by
// an opaque code and filled by named params keyed on the token labels.
type IPPanel struct {
	APIKey     string
	FromNumber string
	BaseURL    string
	HTTP       *resty.Client
}

type ipPanelRequest struct {
	SendingType string            `json:"sending_type"`
	FromNumber  string            `json:"from_number"`
	Code        string            `json:"code"`
	Recipients  []string          `json:"recipients"`
	Params      map[string]string `json:"params"`
}

type ipPanelResponse struct {
	Meta struct {
		Status      bool   `json:"status"`
		Message     string `json:"message"`
		MessageCode string `json:"message_code"`
	} `json:"meta"`
	Data any `json:"data"`
}

func (c *IPPanel) Name() string { return "ippanel" }

func (c *IPPanel) Send(ctx context.Context, destination string, p Payload) domain.DeliveryResult {
	start := time.Now()

	req := ipPanelRequest{
		SendingType: "pattern",
		FromNumber:  c.FromNumber,
		Code:        p.PatternID,
		Recipients:  []string{destination},
		Params:      p.Params(),
	}

	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://edge.ippanel.com"
	}

	resp, err := c.HTTP.R().
		SetContext(ctx).
		SetHeader("apikey", c.APIKey).
		SetBody(req).
		Post(baseURL + "/v1/api/send")
	if err != nil {
		return TransportFailure(req, start, err)
	}

	var out ipPanelResponse
	_ = json.Unmarshal(resp.Body(), &out)

	res := domain.DeliveryResult{
		HTTPStatus:  resp.StatusCode(),
		Duration:    time.Since(start),
		RawResponse: resp.String(),
		Parsed:      out,
		Request:     req,
	}
	if out.Meta.Status {
		res.Success = true
	} else {
		res.ErrorText = "ippanel: " + nonEmpty(out.Meta.Message, "send rejected")
	}
	return res
}
