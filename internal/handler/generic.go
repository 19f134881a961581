package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/allowlist"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/attest"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/errs"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/model"
)

// Generic implements the allowlist-gated fetch: one upstream fetch, one
// attestation. It is used verbatim by services that only need to prove
// "this is what the server returned", with no schema projection.
type Generic struct {
	Allowlist allowlist.List
	Attestor  *attest.Attestor
	Fetch     FetchFunc
}

var _ Handler = (*Generic)(nil)

func (g *Generic) Handle(ctx context.Context, req *model.Request) *model.Response {
	entry, u, err := allowlist.Gate(g.Allowlist, req.URL)
	if err != nil {
		return failureFor(err)
	}

	path := u.Path
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	resp, err := fetchOrDefault(g.Fetch)(ctx, entry, path, req.Method, req.Headers, req.Body)
	if err != nil {
		return model.Failure(502, err)
	}

	apiEndpoint := entry.Hostname + u.Path
	doc, err := g.Attestor.Attest(resp.Body, req.Method, apiEndpoint, req.URL, req.Headers)
	if err != nil {
		return model.Failure(500, fmt.Errorf("%w: %w", errs.AttestationInternal, err))
	}

	return &model.Response{
		Success:     true,
		Status:      uint16(resp.Status),
		Headers:     resp.Headers,
		RawBody:     resp.Body,
		Attestation: doc,
	}
}

// failureFor maps a Gate error to the response status the error taxonomy
// prescribes for a generic pass-through fetch.
func failureFor(err error) *model.Response {
	switch {
	case errors.Is(err, errs.HostNotAllowed):
		return model.Failure(403, err)
	case errors.Is(err, errs.BadRequest):
		return model.Failure(400, err)
	default:
		return model.Failure(502, err)
	}
}
