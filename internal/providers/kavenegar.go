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

// Kavenegar sends pattern SMS through the verify/lookup endpoint. Positional
// args map onto the fixed token query parameters; lookup supports at most
// five of them.
type Kavenegar struct {
	APIKey  string
	BaseURL string
	HTTP    *resty.Client
}

// Query parameter names in argument-position order.
var kavenegarTokenParams = []string{"token", "token2", "token3", "token10", "token20"}

type kavenegarReturn struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

type kavenegarResponse struct {
	Return  kavenegarReturn  `json:"return"`
	Entries []map[string]any `json:"entries"`
}

func (c *Kavenegar) Name() string { return "kavenegar" }

func (c *Kavenegar) Send(ctx context.Context, destination string, p Payload) domain.DeliveryResult {
	start := time.Now()

	if len(p.Args) > len(kavenegarTokenParams) {
		return domain.DeliveryResult{
			Duration:  time.Since(start),
			ErrorText: fmt.Sprintf("kavenegar: lookup supports %d tokens, template declares %d", len(kavenegarTokenParams), len(p.Args)),
		}
	}
	query := map[string]string{
		"receptor": destination,
		"template": p.PatternID,
	}
	for i, v := range p.Args {
		query[kavenegarTokenParams[i]] = v
	}

	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.kavenegar.com"
	}

	resp, err := c.HTTP.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(baseURL + "/v1/" + c.APIKey + "/verify/lookup.json")
	if err != nil {
		return TransportFailure(query, start, err)
	}

	var out kavenegarResponse
	_ = json.Unmarshal(resp.Body(), &out)

	res := domain.DeliveryResult{
		HTTPStatus:  resp.StatusCode(),
		Duration:    time.Since(start),
		RawResponse: resp.String(),
		Parsed:      out,
		Request:     query,
	}
	// Kavenegar mirrors its verdict in return.status; trust it over the
	// HTTP status line.
	if out.Return.Status == 200 {
		res.Success = true
	} else {
		res.ErrorText = fmt.Sprintf("kavenegar: status %d %s", out.Return.Status, out.Return.Message)
	}
	return res
}
