// internal/protocol/adapter_job.go
package protocol

import (
	"fmt"

	"github.com/embershell/embershell/internal/engine"
)

// adapterJob state machine. Transitions ride the cross-context hops, so the
// happens-before edges come from message passing, not locks.
type adapterState int

const (
	stateCreated adapterState = iota
	stateAwaitingDecision
	stateDispatching
	stateDelegated
)

// adapterJob is the job the factory hook hands the engine synchronously. On
// start it ships itself to the control context for a decision and stays
// pending until the dispatcher posts a strategy back; delegation then hands
// the request to one of the engine's concrete jobs and the adapter becomes
// inert. One adapter per request, one handler invocation, no caching.
type adapterJob struct {
	registry *Registry
	original engine.SchemeHandler // non-nil only when intercepting
	req      *engine.Request
	state    adapterState
}

func newAdapterJob(registry *Registry, original engine.SchemeHandler, req *engine.Request) *adapterJob {
	return &adapterJob{
		registry: registry,
		original: original,
		req:      req,
	}
}

// Start runs on the processing loop. It schedules the decision on the
// control context and returns immediately.
func (j *adapterJob) Start() {
	j.state = stateAwaitingDecision
	j.registry.control.Post(func() { dispatch(j) })
}

// delegate consumes the strategy on the processing loop, exactly once.
func (j *adapterJob) delegate(s Strategy) {
	if j.state == stateDelegated {
		panic(fmt.Sprintf("protocol: adapter job for request %s delegated twice", j.req.ID))
	}
	j.state = stateDelegated

	eng := j.registry.engine
	switch s.Kind {
	case StrategyPlainText, StrategyString:
		eng.StartStringJob(j.req, s.MimeType, s.Charset, s.Data)
	case StrategyBuffer:
		eng.StartBufferJob(j.req, s.MimeType, s.Encoding, s.Data)
	case StrategyFile:
		eng.StartFileJob(j.req, s.Path)
	case StrategyError:
		eng.StartErrorJob(j.req, s.Code)
	case StrategyHTTP:
		eng.StartHTTPJob(j.req, s.URL, s.Method, s.Referrer)
	case StrategyFallback:
		if j.original == nil {
			panic(fmt.Sprintf("protocol: fallback for request %s with no original handler", j.req.ID))
		}
		j.original.CreateJob(j.req).Start()
	case StrategyUnimplemented:
		eng.StartErrorJob(j.req, s.Code)
	default:
		eng.StartErrorJob(j.req, engine.ErrCodeNotImplemented)
	}
}
