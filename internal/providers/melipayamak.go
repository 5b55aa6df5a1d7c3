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

// MeliPayamak sends pattern SMS through the shared-service endpoint. The
// pattern is identified by a numeric body id and filled by positional args.
type MeliPayamak struct {
	APIKey  string
	BaseURL string
	HTTP    *resty.Client
}

type meliPayamakRequest struct {
	BodyID int64    `json:"bodyId"`
	To     string   `json:"to"`
	Args   []string `json:"args"`
}

type meliPayamakResponse struct {
	RecID  int64  `json:"recId"`
	Status string `json:"status"`
}

func (c *MeliPayamak) Name() string { return "melipayamak" }

func (c *MeliPayamak) Send(ctx context.Context, destination string, p Payload) domain.DeliveryResult {
	start := time.Now()

	bodyID, err := strconv.ParseInt(p.PatternID, 10, 64)
	if err != nil {
		return domain.DeliveryResult{
			Duration:  time.Since(start),
			ErrorText: fmt.Sprintf("melipayamak: pattern id %q is not numeric", p.PatternID),
		}
	}
	req := meliPayamakRequest{BodyID: bodyID, To: destination, Args: p.Args}

	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://console.melipayamak.com"
	}

	resp, err := c.HTTP.R().
		SetContext(ctx).
		SetBody(req).
		Post(baseURL + "/api/send/shared/" + c.APIKey)
	if err != nil {
		return TransportFailure(req, start, err)
	}

	var out meliPayamakResponse
	_ = json.Unmarshal(resp.Body(), &out)

	res := domain.DeliveryResult{
		HTTPStatus:  resp.StatusCode(),
		Duration:    time.Since(start),
		RawResponse: resp.String(),
		Parsed:      out,
		Request:     req,
	}
	switch {
	case resp.StatusCode() < 200 || resp.StatusCode() >= 300:
		res.ErrorText = fmt.Sprintf("melipayamak: http %d", resp.StatusCode())
	case out.RecID <= 0:
		// HTTP 200 with recId 0 is the provider's own rejection.
		res.ErrorText = "melipayamak: " + nonEmpty(out.Status, "send rejected")
	default:
		res.Success = true
	}
	return res
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
