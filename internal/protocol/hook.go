// internal/protocol/hook.go
package protocol

import (
	"github.com/embershell/embershell/internal/engine"
)

// customSchemeHandler is the factory hook installed into the engine's table
// for every registered or intercepted scheme. The engine needs a job
// synchronously, but the real decision lives with script code on the control
// context, so CreateJob always returns an adapter job immediately and lets
// the decision arrive later.
//
// original is set only for intercepted schemes; it is the handler this hook
// replaced, used for fallback dispatch and restored at uninterception.
type customSchemeHandler struct {
	registry *Registry
	original engine.SchemeHandler
}

// CreateJob is called by the engine on the processing loop, once per
// request. It never blocks and never fails.
func (h *customSchemeHandler) CreateJob(req *engine.Request) engine.Job {
	return newAdapterJob(h.registry, h.original, req)
}

// releaseOriginal hands back the captured original handler and clears the
// hook's reference. Processing-loop confined.
func (h *customSchemeHandler) releaseOriginal() engine.SchemeHandler {
	original := h.original
	h.original = nil
	return original
}
