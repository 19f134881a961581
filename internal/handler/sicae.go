package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/allowlist"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/attest"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/errs"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/field"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/model"

	"golang.org/x/net/html"
)

// SICAESchema is the fixed field layout for a business-code lookup
// response.
var SICAESchema = field.Schema{
	{Name: "nif", Encoding: field.ShortString},
	{Name: "name", Encoding: field.SHA256},
	{Name: "cae1Code", Encoding: field.ShortString},
	{Name: "cae1Desc", Encoding: field.SHA256},
	{Name: "cae2Code", Encoding: field.ShortString},
	{Name: "cae2Desc", Encoding: field.SHA256},
}

const (
	sicaeHost      = "www.sicae.es"
	sicaeLandingPath = "/Consulta.aspx"
)

// SICAE scrapes a two-step ASP.NET WebForms lookup: GET the landing page
// for its postback tokens and session cookie, then POST the search form.
type SICAE struct {
	Attestor *attest.Attestor
	Fetch    FetchFunc
}

var _ Handler = (*SICAE)(nil)

func (s *SICAE) Allowlist() allowlist.List {
	return allowlist.List{{Hostname: sicaeHost, ProxyPort: 8445, Transport: allowlist.TLS}}
}

type sicaeRequest struct {
	NIF string `json:"nif"`
}

var nifRE = regexp.MustCompile(`^\d{9}$`)

func (s *SICAE) Handle(ctx context.Context, req *model.Request) *model.Response {
	var in sicaeRequest
	if err := json.Unmarshal(req.Body, &in); err != nil || !nifRE.MatchString(in.NIF) {
		return model.Failure(400, fmt.Errorf("%w: expected {nif: 9 digits}", errs.BadRequest))
	}

	entry, ok := s.Allowlist().Lookup(sicaeHost)
	if !ok {
		return model.Failure(500, fmt.Errorf("nif lookup host missing from allowlist"))
	}

	landing, err := fetchOrDefault(s.Fetch)(ctx, entry, sicaeLandingPath, "GET", nil, nil)
	if err != nil {
		return failureFor(err)
	}

	viewState, ok := extractHiddenInput(string(landing.Body), "__VIEWSTATE")
	if !ok {
		return model.Failure(502, fmt.Errorf("%w: missing __VIEWSTATE", errs.ParseError))
	}
	eventValidation, ok := extractHiddenInput(string(landing.Body), "__EVENTVALIDATION")
	if !ok {
		return model.Failure(502, fmt.Errorf("%w: missing __EVENTVALIDATION", errs.ParseError))
	}
	cookie, _ := landing.Headers.Get("set-cookie")
	nifField := nifFieldName(string(landing.Body))

	form := url.Values{}
	form.Set("__VIEWSTATE", viewState)
	form.Set("__EVENTVALIDATION", eventValidation)
	form.Set(nifField, in.NIF)
	form.Set("ctl00$ContentPlaceHolder1$btnBuscar", "Buscar")
	body := []byte(form.Encode())

	headers := model.Headers{{Name: "Content-Type", Value: "application/x-www-form-urlencoded"}}
	if cookie != "" {
		headers = headers.Set("Cookie", cookie)
	}

	result, err := fetchOrDefault(s.Fetch)(ctx, entry, sicaeLandingPath, "POST", headers, body)
	if err != nil {
		return failureFor(err)
	}
	if result.Status == 404 {
		return model.Failure(404, fmt.Errorf("nif not found"))
	}
	if result.Status != 200 {
		return model.Failure(502, fmt.Errorf("%w: sicae status %d", errs.UpstreamStatus, result.Status))
	}

	name, cae1Code, cae1Desc, cae2Code, cae2Desc, ok := parseSICAEResult(string(result.Body))
	if !ok {
		return model.Failure(404, fmt.Errorf("nif not found"))
	}

	values := map[string]field.Value{
		"nif":      in.NIF,
		"name":     name,
		"cae1Code": cae1Code,
		"cae1Desc": cae1Desc,
		"cae2Code": cae2Code,
		"cae2Desc": cae2Desc,
	}
	block, err := field.Encode(SICAESchema, values)
	if err != nil {
		return model.Failure(500, err)
	}

	apiEndpoint := entry.Hostname + sicaeLandingPath
	doc, err := s.Attestor.Attest(block, req.Method, apiEndpoint, req.URL, req.Headers)
	if err != nil {
		return model.Failure(500, fmt.Errorf("%w: %w", errs.AttestationInternal, err))
	}

	respHeaders := model.Headers{{Name: "x-sicae-nif", Value: in.NIF}}
	if name != "" {
		respHeaders = respHeaders.Set("x-sicae-name", name)
	}
	if cae1Code != "" {
		respHeaders = respHeaders.Set("x-sicae-cae1", cae1Code)
	}
	if cae2Code != "" {
		respHeaders = respHeaders.Set("x-sicae-cae2", cae2Code)
	}

	return &model.Response{
		Success:     true,
		Status:      200,
		Headers:     respHeaders,
		RawBody:     block,
		Attestation: doc,
	}
}

var hiddenInputTemplate = `id="%s" value="([^"]*)"`

func extractHiddenInput(page, id string) (string, bool) {
	re := regexp.MustCompile(fmt.Sprintf(hiddenInputTemplate, regexp.QuoteMeta(id)))
	m := re.FindStringSubmatch(page)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// candidateNIFFields lists the form field names this landing page has used
// historically, tried in order; the first one present in the page wins.
var candidateNIFFields = []string{"ctl00$ContentPlaceHolder1$txtNif", "ctl00$ContentPlaceHolder1$txtCif", "txtNif"}

func nifFieldName(page string) string {
	for _, name := range candidateNIFFields {
		if strings.Contains(page, name) {
			return name
		}
	}
	return candidateNIFFields[0]
}

// parseSICAEResult looks for a results table first, falling back to a
// bare scan for 5-digit activity codes if the table structure isn't
// recognised (structured-table preferred, any five-digit codes
// fallback").
func parseSICAEResult(page string) (name, cae1Code, cae1Desc, cae2Code, cae2Desc string, ok bool) {
	if name, codes, descs, found := parseSICAETable(page); found && len(codes) > 0 {
		cae1Code = codes[0]
		if len(descs) > 0 {
			cae1Desc = descs[0]
		}
		if len(codes) > 1 {
			cae2Code = codes[1]
		}
		if len(descs) > 1 {
			cae2Desc = descs[1]
		}
		return name, cae1Code, cae1Desc, cae2Code, cae2Desc, true
	}

	codes := fiveDigitCodeRE.FindAllString(page, -1)
	if len(codes) == 0 {
		return "", "", "", "", "", false
	}
	cae1Code = codes[0]
	if len(codes) > 1 {
		cae2Code = codes[1]
	}
	return "", cae1Code, "", cae2Code, "", true
}

var fiveDigitCodeRE = regexp.MustCompile(`\b\d{5}\b`)

// parseSICAETable walks the HTML looking for a table whose rows carry a
// business name and one or more (code, description) activity pairs.
func parseSICAETable(page string) (name string, codes, descs []string, ok bool) {
	tokenizer := html.NewTokenizer(strings.NewReader(page))
	var cells []string
	inTable := false

	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		tok := tokenizer.Token()
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			switch tok.Data {
			case "table":
				inTable = true
			case "tr":
				cells = nil
			}
		case html.EndTagToken:
			if tok.Data == "table" {
				inTable = false
			}
			if tok.Data == "tr" && inTable {
				if classifySICAERow(cells, &name, &codes, &descs) {
					ok = true
				}
			}
		case html.TextToken:
			if inTable {
				text := strings.TrimSpace(tok.Data)
				if text != "" {
					cells = append(cells, text)
				}
			}
		}
	}
	return name, codes, descs, ok
}

// classifySICAERow interprets one table row: a row with exactly one cell
// is treated as the business name; a row starting with a 5-digit code is
// treated as an activity (code, description) pair.
func classifySICAERow(cells []string, name *string, codes, descs *[]string) bool {
	if len(cells) == 0 {
		return false
	}
	if len(cells) == 1 && !fiveDigitCodeRE.MatchString(cells[0]) {
		*name = cells[0]
		return false
	}
	if fiveDigitCodeRE.MatchString(cells[0]) {
		*codes = append(*codes, cells[0])
		if len(cells) > 1 {
			*descs = append(*descs, cells[1])
		} else {
			*descs = append(*descs, "")
		}
		return true
	}
	return false
}
