package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/allowlist"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/attest"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/errs"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/field"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/model"
)

// VIESSchema is the fixed field layout for a VAT check response
//
var VIESSchema = field.Schema{
	{Name: "countryCode", Encoding: field.ShortString},
	{Name: "vatNumber", Encoding: field.ShortString},
	{Name: "valid", Encoding: field.UInt},
	{Name: "name", Encoding: field.SHA256},
	{Name: "address", Encoding: field.SHA256},
}

const (
	hmrcHost = "api.service.hmrc.gov.uk"
	viesHost = "ec.europa.eu"
	viesPath = "/taxation_customs/vies/services/checkVatService"
)

// VIES answers VAT-number validity checks: HMRC's REST API for GB numbers,
// the EU VIES SOAP service for everyone else.
type VIES struct {
	Attestor *attest.Attestor
	Fetch    FetchFunc
}

var _ Handler = (*VIES)(nil)

// Allowlist is the fixed set of hosts a VIES enclave may contact.
func (v *VIES) Allowlist() allowlist.List {
	return allowlist.List{
		{Hostname: hmrcHost, ProxyPort: 8443, Transport: allowlist.TLS},
		{Hostname: viesHost, ProxyPort: 8444, Transport: allowlist.TLS},
	}
}

type viesRequest struct {
	CountryCode string `json:"countryCode"`
	VATNumber   string `json:"vatNumber"`
}

func (v *VIES) Handle(ctx context.Context, req *model.Request) *model.Response {
	var in viesRequest
	if err := json.Unmarshal(req.Body, &in); err != nil || in.CountryCode == "" || in.VATNumber == "" {
		return model.Failure(400, fmt.Errorf("%w: expected {countryCode, vatNumber}", errs.BadRequest))
	}

	var (
		valid           bool
		name, address   string
		entry           allowlist.Entry
		path            string
		err             error
	)

	if in.CountryCode == "GB" {
		entry, path, valid, name, address, err = v.checkHMRC(ctx, in.VATNumber)
	} else {
		entry, path, valid, name, address, err = v.checkVIES(ctx, in.CountryCode, in.VATNumber)
	}
	if err != nil {
		return failureFor(err)
	}

	values := map[string]field.Value{
		"countryCode": in.CountryCode,
		"vatNumber":   in.VATNumber,
		"valid":       boolToUint(valid),
		"name":        name,
		"address":     address,
	}
	block, err := field.Encode(VIESSchema, values)
	if err != nil {
		return model.Failure(500, err)
	}

	apiEndpoint := entry.Hostname + path
	doc, err := v.Attestor.Attest(block, req.Method, apiEndpoint, req.URL, req.Headers)
	if err != nil {
		return model.Failure(500, fmt.Errorf("%w: %w", errs.AttestationInternal, err))
	}

	headers := model.Headers{
		{Name: "x-vies-country-code", Value: in.CountryCode},
		{Name: "x-vies-vat-number", Value: in.VATNumber},
		{Name: "x-vies-valid", Value: fmt.Sprintf("%d", boolToUint(valid))},
	}
	if name != "" {
		headers = headers.Set("x-vies-name", name)
	}
	if address != "" {
		headers = headers.Set("x-vies-address", address)
	}

	return &model.Response{
		Success:     true,
		Status:      200,
		Headers:     headers,
		RawBody:     block,
		Attestation: doc,
	}
}

func boolToUint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

type hmrcTarget struct {
	Name    string `json:"name"`
	Address struct {
		Line1    string `json:"line1"`
		Line2    string `json:"line2"`
		Postcode string `json:"postcode"`
	} `json:"address"`
}

type hmrcResponse struct {
	Target hmrcTarget `json:"target"`
}

func (v *VIES) checkHMRC(ctx context.Context, vatNumber string) (allowlist.Entry, string, bool, string, string, error) {
	entry, _, err := allowlist.Gate(v.Allowlist(), "https://"+hmrcHost+"/")
	if err != nil {
		return allowlist.Entry{}, "", false, "", "", err
	}

	path := "/organisations/vat/check-vat-number/lookup/" + url.PathEscape(vatNumber)
	headers := model.Headers{{Name: "Accept", Value: "application/vnd.hmrc.1.0+json"}}

	resp, err := fetchOrDefault(v.Fetch)(ctx, entry, path, "GET", headers, nil)
	if err != nil {
		return allowlist.Entry{}, path, false, "", "", err
	}

	switch resp.Status {
	case 404:
		return entry, path, false, "", "", nil
	case 200:
		var body hmrcResponse
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			return allowlist.Entry{}, path, false, "", "", fmt.Errorf("%w: %w", errs.ParseError, err)
		}
		address := joinNonEmpty(", ", body.Target.Address.Line1, body.Target.Address.Line2, body.Target.Address.Postcode)
		return entry, path, true, body.Target.Name, address, nil
	default:
		return allowlist.Entry{}, path, false, "", "", fmt.Errorf("%w: HMRC status %d", errs.UpstreamStatus, resp.Status)
	}
}

func joinNonEmpty(sep string, parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

var (
	faultStringRE = regexp.MustCompile(`(?s)<faultstring>(.*?)</faultstring>`)
	validRE       = regexp.MustCompile(`(?s)<(?:\w+:)?valid>(.*?)</(?:\w+:)?valid>`)
	nameRE        = regexp.MustCompile(`(?s)<(?:\w+:)?name>(.*?)</(?:\w+:)?name>`)
	addressRE     = regexp.MustCompile(`(?s)<(?:\w+:)?address>(.*?)</(?:\w+:)?address>`)
)

const viesSOAPTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:urn="urn:ec.europa.eu:taxud:vies:services:checkVat:types">
<soapenv:Header/>
<soapenv:Body>
<urn:checkVat>
<urn:countryCode>%s</urn:countryCode>
<urn:vatNumber>%s</urn:vatNumber>
</urn:checkVat>
</soapenv:Body>
</soapenv:Envelope>`

func (v *VIES) checkVIES(ctx context.Context, countryCode, vatNumber string) (allowlist.Entry, string, bool, string, string, error) {
	entry, _, err := allowlist.Gate(v.Allowlist(), "https://"+viesHost+"/")
	if err != nil {
		return allowlist.Entry{}, "", false, "", "", err
	}

	envelope := fmt.Sprintf(viesSOAPTemplate, xmlEscape(countryCode), xmlEscape(vatNumber))
	headers := model.Headers{
		{Name: "Content-Type", Value: "text/xml;charset=UTF-8"},
		{Name: "SOAPAction", Value: ""},
	}

	resp, err := fetchOrDefault(v.Fetch)(ctx, entry, viesPath, "POST", headers, []byte(envelope))
	if err != nil {
		return allowlist.Entry{}, viesPath, false, "", "", err
	}

	body := string(resp.Body)
	if resp.Status != 200 || strings.Contains(body, "<Fault") || strings.Contains(body, ":Fault>") {
		msg := "VIES SOAP fault"
		if m := faultStringRE.FindStringSubmatch(body); m != nil {
			msg = m[1]
		}
		return allowlist.Entry{}, viesPath, false, "", "", fmt.Errorf("%w: %s", errs.UpstreamStatus, msg)
	}

	m := validRE.FindStringSubmatch(body)
	if m == nil {
		return allowlist.Entry{}, viesPath, false, "", "", fmt.Errorf("%w: missing <valid> element", errs.ParseError)
	}
	valid := strings.TrimSpace(m[1]) == "true"

	name, address := "", ""
	if n := nameRE.FindStringSubmatch(body); n != nil {
		name = strings.TrimSpace(n[1])
	}
	if a := addressRE.FindStringSubmatch(body); a != nil {
		address = strings.TrimSpace(a[1])
	}
	return entry, viesPath, valid, name, address, nil
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
