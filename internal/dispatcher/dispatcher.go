package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"carebook/internal/config"
	"carebook/internal/metrics"

	"github.com/rs/zerolog"
)

const (
	SourceRemote = "remote"
	SourceLocal  = "local"

	// UserIDHeader carries the authenticated caller on the wire.
	UserIDHeader = "X-User-ID"
)

type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   json.RawMessage
	UserID string
}

// Response is the outcome of a routed request. Failures are responses too:
// Status carries the mapped code and Err the engine error behind it.
type Response struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
	Source string          `json:"source"`
	Err    error           `json:"-"`
}

// Dispatcher is the single entry point for engine requests. It tries the
// remote backend first and serves locally when the remote cannot answer in
// time.
type Dispatcher struct {
	router  *Router
	remote  *remote
	latency time.Duration
	logger  *zerolog.Logger
}

func New(cfg config.DispatcherConfig, svc Services, logger *zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		router:  NewRouter(),
		latency: cfg.SimulatedLatency,
		logger:  logger,
	}
	if cfg.RemoteURL != "" {
		d.remote = newRemote(cfg.RemoteURL, cfg.RemoteTimeout, cfg.RecoveryInterval)
	}
	registerRoutes(d.router, svc)
	return d
}

// Do serves req. The returned error is non-nil only when ctx ended before
// the request could be served.
func (d *Dispatcher) Do(ctx context.Context, req Request) (*Response, error) {
	if d.remote != nil && d.remote.available() {
		resp, err := d.remote.do(ctx, &req)
		if err == nil {
			metrics.IncDispatch(d.routeLabel(&req), SourceRemote)
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.IncRemoteFallback()
		d.logger.Warn().Err(err).Str("method", req.Method).Str("path", req.Path).Msg("remote attempt abandoned, serving locally")
	}
	return d.local(ctx, &req)
}

func (d *Dispatcher) local(ctx context.Context, req *Request) (*Response, error) {
	if d.latency > 0 {
		t := time.NewTimer(d.latency)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	rt, params, ok := d.router.match(req.Method, req.Path)
	if !ok {
		metrics.IncDispatch("unmatched", SourceLocal)
		return failure(fmt.Errorf("no route for %s %s", req.Method, req.Path), http.StatusNotFound), nil
	}
	metrics.IncDispatch(rt.pattern, SourceLocal)

	status, payload, err := rt.handler(ctx, req, params)
	if err != nil {
		resp := failure(err, StatusFor(err))
		if resp.Status >= http.StatusInternalServerError {
			d.logger.Error().Err(err).Str("route", rt.pattern).Msg("request failed")
		}
		return resp, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return failure(fmt.Errorf("encode response: %w", err), http.StatusInternalServerError), nil
	}
	return &Response{Status: status, Body: body, Source: SourceLocal}, nil
}

func (d *Dispatcher) routeLabel(req *Request) string {
	if rt, _, ok := d.router.match(req.Method, req.Path); ok {
		return rt.pattern
	}
	return "unmatched"
}

func failure(err error, status int) *Response {
	body, _ := json.Marshal(map[string]string{"error": err.Error()})
	return &Response{Status: status, Body: body, Source: SourceLocal, Err: err}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(req *Request, v any) error {
	if len(req.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Body, v); err != nil {
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return nil
}
