// internal/engine/engine.go

// Package engine implements the host network engine: a scheme-keyed factory
// table driven by a single processing loop, plus the concrete jobs that
// produce response bytes. Requests enter through Fetch, are routed to the
// SchemeHandler installed for their scheme, and finish when the handler's
// job delivers exactly one response.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/embershell/embershell/internal/config"
	"github.com/embershell/embershell/internal/taskloop"
)

// Job produces the response for one request. Start is called once, on the
// processing loop; the job delivers through its request when done.
type Job interface {
	Start()
}

// SchemeHandler is one entry in the factory table. CreateJob is called
// synchronously on the processing loop once per incoming request; it must
// not block and must not fail.
type SchemeHandler interface {
	CreateJob(req *Request) Job
}

// SchemeHandlerFunc adapts a function to the SchemeHandler interface.
type SchemeHandlerFunc func(req *Request) Job

// CreateJob calls f.
func (f SchemeHandlerFunc) CreateJob(req *Request) Job { return f(req) }

// Engine owns the factory table and the processing loop. The table and the
// standard-scheme set are mutated only on that loop.
type Engine struct {
	loop   *taskloop.Loop
	client *http.Client
	logger *zap.Logger

	factory  map[string]SchemeHandler // processing-loop confined
	standard map[string]struct{}      // processing-loop confined
}

// New creates an unstarted Engine. Standard schemes from the configuration
// are seeded once the loop starts.
func New(cfg config.EngineConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("engine")

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	e := &Engine{
		loop:     taskloop.NewLoop("processing", log),
		client:   &http.Client{Timeout: timeout},
		logger:   log,
		factory:  make(map[string]SchemeHandler),
		standard: make(map[string]struct{}),
	}
	if len(cfg.StandardSchemes) > 0 {
		e.RegisterStandardSchemes(cfg.StandardSchemes)
	}
	return e
}

// Start launches the processing loop.
func (e *Engine) Start() { e.loop.Start() }

// Stop drains and stops the processing loop and drops idle HTTP
// connections.
func (e *Engine) Stop() {
	e.loop.Stop()
	e.client.CloseIdleConnections()
}

// Runner exposes the processing loop so other components can post work onto
// it. The protocol layer uses this for its installation round trips.
func (e *Engine) Runner() taskloop.Runner { return e.loop }

// SetSchemeHandler installs (or, with nil, clears) the handler for a scheme.
// Processing-loop confined.
func (e *Engine) SetSchemeHandler(scheme string, h SchemeHandler) {
	if h == nil {
		delete(e.factory, scheme)
		e.logger.Debug("cleared scheme handler", zap.String("scheme", scheme))
		return
	}
	e.factory[scheme] = h
	e.logger.Debug("installed scheme handler", zap.String("scheme", scheme))
}

// SchemeHandlerFor returns the installed handler for a scheme, or nil.
// Processing-loop confined.
func (e *Engine) SchemeHandlerFor(scheme string) SchemeHandler {
	return e.factory[scheme]
}

// ReplaceScheme swaps the handler for a scheme and returns the previous one.
// Processing-loop confined.
func (e *Engine) ReplaceScheme(scheme string, h SchemeHandler) SchemeHandler {
	prev := e.factory[scheme]
	e.factory[scheme] = h
	e.logger.Debug("replaced scheme handler", zap.String("scheme", scheme))
	return prev
}

// IsHandled reports whether a scheme has an installed handler.
// Processing-loop confined.
func (e *Engine) IsHandled(scheme string) bool {
	_, ok := e.factory[scheme]
	return ok
}

// RegisterStandardSchemes adds schemes to the engine's standard-scheme
// classification set. Fire and forget; safe from any goroutine.
func (e *Engine) RegisterStandardSchemes(schemes []string) {
	e.loop.Post(func() {
		for _, s := range schemes {
			e.standard[s] = struct{}{}
		}
		e.logger.Info("registered standard schemes", zap.Strings("schemes", schemes))
	})
}

// StandardSchemes returns a snapshot of the standard-scheme set. It blocks
// the caller on a loop round trip and must not be called from the loop
// itself.
func (e *Engine) StandardSchemes() []string {
	ch := make(chan []string, 1)
	e.loop.Post(func() {
		out := make([]string, 0, len(e.standard))
		for s := range e.standard {
			out = append(out, s)
		}
		ch <- out
	})
	return <-ch
}

// Fetch runs one request through the engine and waits for its response. The
// caller's goroutine blocks; the processing loop never does. Fetch must not
// be called from the processing loop.
func (e *Engine) Fetch(ctx context.Context, method, rawURL, referrer string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing request url: %w", err)
	}
	if method == "" {
		method = http.MethodGet
	}

	type result struct {
		resp *Response
		err  error
	}
	ch := make(chan result, 1)

	e.loop.Post(func() {
		req := NewRequest(method, u, referrer, func(resp *Response, err error) {
			ch <- result{resp, err}
		})
		h := e.factory[u.Scheme]
		if h == nil {
			req.Deliver(nil, &NotHandledError{Scheme: u.Scheme})
			return
		}
		e.logger.Debug("dispatching request",
			zap.String("id", req.ID),
			zap.String("method", method),
			zap.String("url", u.String()))
		h.CreateJob(req).Start()
	})

	select {
	case r := <-ch:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
