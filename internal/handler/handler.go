// Package handler implements the generic allowlist-gated fetch and the
// per-service custom handlers that project an upstream response into a
// field-element schema. Exactly one Handler is compiled into each enclave
// binary; which one is a build-time choice, not a runtime plug-in, because
// the handler's identity is part of PCR0.
package handler

import (
	"context"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/allowlist"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/httpmicro"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/model"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/upstream"
)

// Handler serves one enclave request end to end, including attestation.
// It never returns an error: every failure is folded into a failure
// Response so the accept loop always has exactly one frame to write back.
type Handler interface {
	Handle(ctx context.Context, req *model.Request) *model.Response
}

// FetchFunc performs one outbound request against an allowlisted host. It
// matches upstream.Fetch's signature. Each handler's Fetch field defaults
// to upstream.Fetch and is only overridden in tests, to exercise Handle
// end to end against a canned upstream response instead of a real vsock
// proxy.
type FetchFunc func(
	ctx context.Context,
	entry allowlist.Entry,
	path, method string,
	headers model.Headers,
	body []byte,
) (*httpmicro.Response, error)

// fetchOrDefault returns f if the handler was given one, otherwise
// upstream.Fetch.
func fetchOrDefault(f FetchFunc) FetchFunc {
	if f != nil {
		return f
	}
	return upstream.Fetch
}
