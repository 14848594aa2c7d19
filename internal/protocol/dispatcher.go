// internal/protocol/dispatcher.go
package protocol

import (
	"go.uber.org/zap"

	"github.com/embershell/embershell/api/schemas"
)

// dispatch is the decision dispatcher. It runs on the control context: it
// looks up the scheme's current handler, invokes it once with the request
// descriptor, classifies the return value, and posts the resulting strategy
// back to the processing loop exactly once.
func dispatch(j *adapterJob) {
	j.state = stateDispatching
	r := j.registry

	var result any
	if handler := r.LookupHandler(j.req.Scheme()); handler != nil {
		result = handler(schemas.Request{
			Method:   j.req.Method,
			URL:      j.req.URL.String(),
			Referrer: j.req.Referrer,
		})
	} else {
		// The entry was removed between job creation and dispatch; classify
		// a nil result so the request degrades instead of hanging.
		r.logger.Debug("no handler at dispatch time", zap.String("scheme", j.req.Scheme()))
	}

	strategy := Classify(result, j.original != nil)
	r.logger.Debug("classified handler result",
		zap.String("id", j.req.ID),
		zap.String("scheme", j.req.Scheme()),
		zap.Stringer("strategy", strategy.Kind))

	r.engine.Runner().Post(func() { j.delegate(strategy) })
}
