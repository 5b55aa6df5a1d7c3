package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"dispatchd/internal/domain"
)

// SMSIr sends pattern SMS through the verify endpoint. The provider wants
// named parameters; the template's token labels double as parameter names,
// so positional order still carries through.
type SMSIr struct {
	APIKey  string
	BaseURL string
	HTTP    *resty.Client
}

type smsIrParameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type smsIrRequest struct {
	Mobile     string           `json:"mobile"`
	TemplateID int64            `json:"templateId"`
	Parameters []smsIrParameter `json:"parameters"`
}

type smsIrResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    struct {
		MessageID int64   `json:"messageId"`
		Cost      float64 `json:"cost"`
	} `json:"data"`
}

func (c *SMSIr) Name() string { return "smsir" }

func (c *SMSIr) Send(ctx context.Context, destination string, p Payload) domain.DeliveryResult {
	start := time.Now()

	templateID, err := strconv.ParseInt(p.PatternID, 10, 64)
	if err != nil {
		return domain.DeliveryResult{
			Duration:  time.Since(start),
			ErrorText: fmt.Sprintf("smsir: template id %q is not numeric", p.PatternID),
		}
	}
	req := smsIrRequest{Mobile: destination, TemplateID: templateID}
	for i, name := range p.ParamNames {
		if i < len(p.Args) {
			req.Parameters = append(req.Parameters, smsIrParameter{Name: name, Value: p.Args[i]})
		}
	}

	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.sms.ir"
	}

	resp, err := c.HTTP.R().
		SetContext(ctx).
		SetHeader("x-api-key", c.APIKey).
		SetBody(req).
		Post(baseURL + "/v1/send/verify")
	if err != nil {
		return TransportFailure(req, start, err)
	}

	var out smsIrResponse
	_ = json.Unmarshal(resp.Body(), &out)

	res := domain.DeliveryResult{
		HTTPStatus:  resp.StatusCode(),
		Duration:    time.Since(start),
		RawResponse: resp.String(),
		Parsed:      out,
		Request:     req,
	}
	// status 1 is the provider's success code; anything else is a logical
	// failure regardless of the HTTP status.
	if out.Status == 1 {
		res.Success = true
	} else {
		res.ErrorText = fmt.Sprintf("smsir: status %d %s", out.Status, out.Message)
	}
	return res
}
