package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/allowlist"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/attest"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/errs"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/field"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/model"
)

// StripeSchema is the fixed field layout for a payments-listing response
//
var StripeSchema = field.Schema{
	{Name: "operation", Encoding: field.ShortString},
	{Name: "accountId", Encoding: field.ShortString},
	{Name: "objectType", Encoding: field.ShortString},
	{Name: "dataHash", Encoding: field.SHA256},
	{Name: "totalCount", Encoding: field.UInt},
	{Name: "hasMore", Encoding: field.UInt},
}

const (
	stripeHost    = "api.stripe.com"
	stripeVersion = "2023-10-16"
)

// operationPaths is the closed set of operations Stripe requests may name,
// each fixed to one REST path template. The list_* operations return a
// "list" object; get_balance returns a "balance" object (see
// operationObjectType).
var operationPaths = map[string]string{
	"list_charges":          "/v1/charges",
	"list_payment_intents":  "/v1/payment_intents",
	"list_invoices":         "/v1/invoices",
	"list_customers":        "/v1/customers",
	"get_balance":           "/v1/balance",
}

// operationObjectType is the Stripe "object" value each operation's
// response must carry. A response whose object doesn't match -- e.g. a
// "balance" object returned for a list_charges request -- is rejected
// rather than attested, since it means the wrong resource was fetched.
var operationObjectType = map[string]string{
	"list_charges":          "list",
	"list_payment_intents":  "list",
	"list_invoices":         "list",
	"list_customers":        "list",
	"get_balance":           "balance",
}

// Stripe fetches a fixed set of read-only Stripe list/lookup endpoints and
// attests the shape of the resulting page.
type Stripe struct {
	Attestor *attest.Attestor
	Fetch    FetchFunc
}

var _ Handler = (*Stripe)(nil)

func (s *Stripe) Allowlist() allowlist.List {
	return allowlist.List{{Hostname: stripeHost, ProxyPort: 8446, Transport: allowlist.TLS}}
}

type stripeRequest struct {
	Operation     string            `json:"operation"`
	APIKey        string            `json:"apiKey"`
	StripeAccount string            `json:"stripeAccount,omitempty"`
	QueryParams   map[string]string `json:"queryParams,omitempty"`
	ResourceID    string            `json:"resourceId,omitempty"`
}

type stripeListResponse struct {
	Object     string          `json:"object"`
	HasMore    bool            `json:"has_more"`
	TotalCount *int            `json:"total_count"`
	Data       json.RawMessage `json:"data"`
}

func (s *Stripe) Handle(ctx context.Context, req *model.Request) *model.Response {
	var in stripeRequest
	if err := json.Unmarshal(req.Body, &in); err != nil || in.Operation == "" || in.APIKey == "" {
		return model.Failure(400, fmt.Errorf("%w: expected {operation, apiKey}", errs.BadRequest))
	}

	pathTemplate, ok := operationPaths[in.Operation]
	if !ok {
		return model.Failure(400, fmt.Errorf("%w: unknown operation %q", errs.BadRequest, in.Operation))
	}
	path := pathTemplate
	if in.ResourceID != "" {
		path = pathTemplate + "/" + url.PathEscape(in.ResourceID)
	}
	if len(in.QueryParams) > 0 {
		q := url.Values{}
		for k, v := range in.QueryParams {
			q.Set(k, v)
		}
		path += "?" + q.Encode()
	}

	entry, ok := s.Allowlist().Lookup(stripeHost)
	if !ok {
		return model.Failure(500, fmt.Errorf("stripe host missing from allowlist"))
	}

	headers := model.Headers{
		{Name: "Authorization", Value: "Bearer " + in.APIKey},
		{Name: "Stripe-Version", Value: stripeVersion},
	}
	if in.StripeAccount != "" {
		headers = headers.Set("Stripe-Account", in.StripeAccount)
	}

	resp, err := fetchOrDefault(s.Fetch)(ctx, entry, path, "GET", headers, nil)
	if err != nil {
		return failureFor(err)
	}
	if resp.Status != 200 {
		return model.Failure(502, fmt.Errorf("%w: stripe status %d", errs.UpstreamStatus, resp.Status))
	}

	var parsed stripeListResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil || parsed.Object == "" {
		return model.Failure(502, fmt.Errorf("%w: unexpected stripe response shape", errs.ParseError))
	}
	if want := operationObjectType[in.Operation]; parsed.Object != want {
		return model.Failure(502, fmt.Errorf("%w: operation %q expected object %q, got %q",
			errs.ParseError, in.Operation, want, parsed.Object))
	}

	totalCount := uint64(0)
	if parsed.TotalCount != nil {
		totalCount = uint64(*parsed.TotalCount)
	}

	// field.SHA256 hashes its input itself, so dataHash's input is the raw
	// response body -- the schema encoding produces SHA-256(response_body)
	// reduced into the slot, matching dataHash's definition exactly.
	values := map[string]field.Value{
		"operation":  in.Operation,
		"accountId":  in.StripeAccount,
		"objectType": parsed.Object,
		"dataHash":   string(resp.Body),
		"totalCount": totalCount,
		"hasMore":    boolToUint(parsed.HasMore),
	}
	block, err := field.Encode(StripeSchema, values)
	if err != nil {
		return model.Failure(500, err)
	}

	apiEndpoint := entry.Hostname + pathTemplate
	doc, err := s.Attestor.Attest(block, req.Method, apiEndpoint, req.URL, req.Headers)
	if err != nil {
		return model.Failure(500, fmt.Errorf("%w: %w", errs.AttestationInternal, err))
	}

	respHeaders := model.Headers{
		{Name: "x-stripe-operation", Value: in.Operation},
		{Name: "x-stripe-object-type", Value: parsed.Object},
	}

	return &model.Response{
		Success:     true,
		Status:      200,
		Headers:     respHeaders,
		RawBody:     block,
		Attestation: doc,
	}
}
