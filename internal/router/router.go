// Package router implements the host-side HTTP router that discovers
// enclaves by vsock CID and forwards framed requests to them: path
// constants, middleware gated on a Debug flag, and constructor functions
// that close over their dependencies and return an http.HandlerFunc, each
// forwarding a model.Request to an enclave and relaying its framed reply.
package router

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/config"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/errs"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/httperr"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/model"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/vsockaddr"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/wire"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// The router's URL paths.
const (
	PathAttestFetch = "/attest/fetch"
	PathHealth      = "/health"
	PathRoutes      = "/routes"
)

// Router forwards HTTP requests to enclaves over vsock.
type Router struct {
	Config *config.RouterConfig
	Dial   func(cid, port uint32) (netConnLike, error)
	Prober HealthProber
	Debug  bool
}

// netConnLike is the subset of net.Conn the round trip needs: it must be
// usable as the io.Writer for wire.WriteMessage and the io.Reader for
// wire.ReadMessage, and closeable when the exchange is done.
type netConnLike interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	Close() error
}

// New builds a Router that dials enclaves over real AF_VSOCK sockets.
func New(cfg *config.RouterConfig) *Router {
	return &Router{
		Config: cfg,
		Dial: func(cid, port uint32) (netConnLike, error) {
			return vsockaddr.Dial(cid, port)
		},
		Prober: NewNitroCLIProber(),
	}
}

// Handler builds the chi.Mux serving the router's three endpoints.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	if rt.Debug {
		r.Use(middleware.Logger)
	}

	r.Post(PathAttestFetch, rt.handleAttestFetch())
	r.Get(PathHealth, rt.handleHealth())
	r.Get(PathRoutes, rt.handleRoutes())

	return r
}

// fetchRequest is the router's public request body for POST /attest/fetch.
type fetchRequest struct {
	ID      string        `json:"id,omitempty"`
	URL     string        `json:"url"`
	Method  string        `json:"method"`
	Headers model.Headers `json:"headers,omitempty"`
	Body    []byte        `json:"body,omitempty"`
}

func (rt *Router) handleAttestFetch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req fetchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			encode(w, http.StatusBadRequest, httperr.New("malformed JSON body"))
			return
		}
		if req.URL == "" || req.Method == "" {
			encode(w, http.StatusBadRequest, httperr.New("url and method are required"))
			return
		}

		hostname, err := hostnameOf(req.URL)
		if err != nil {
			encode(w, http.StatusBadRequest, httperr.New("invalid url"))
			return
		}

		entry, ok := rt.Config.Routes[hostname]
		if !ok {
			log.Printf("router: %v: %s (request %s)", errs.NoRoute, hostname, req.ID)
			encode(w, http.StatusNotFound, httperr.New("no enclave route for "+hostname))
			return
		}

		resp, err := rt.forward(entry, &req)
		if err != nil {
			errs.WrapErr(&err, errs.EnclaveTransport)
			log.Printf("router: forwarding request %s to %s failed: %v", req.ID, hostname, err)
			encode(w, http.StatusBadGateway, model.Failure(502, err))
			return
		}

		encode(w, http.StatusOK, resp)
	}
}

func (rt *Router) forward(entry config.RouteEntry, req *fetchRequest) (*model.Response, error) {
	conn, err := rt.Dial(entry.CID, entry.Port)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	wireReq := &model.Request{
		ID:      req.ID,
		URL:     req.URL,
		Method:  req.Method,
		Headers: req.Headers,
		Body:    req.Body,
	}
	if err := wire.WriteMessage(conn, wireReq); err != nil {
		return nil, err
	}

	var resp model.Response
	if err := wire.ReadMessage(conn, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (rt *Router) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := rt.Prober.Probe(r.Context(), rt.Config.Routes)

		status := http.StatusOK
		if !result.Healthy {
			status = http.StatusServiceUnavailable
		}
		encode(w, status, result)
	}
}

func (rt *Router) handleRoutes() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		encode(w, http.StatusOK, rt.Config.Routes)
	}
}

func hostnameOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Hostname(), nil
}

// encode writes v as a JSON response body.
func encode[T any](w http.ResponseWriter, status int, v T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("router: failed to encode JSON response: %v", err)
	}
}
