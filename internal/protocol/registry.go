// internal/protocol/registry.go

// Package protocol bridges the script-side control context and the engine's
// processing loop. The registry maps schemes to script handlers; the factory
// hook it installs into the engine creates an adapter job per request whose
// real behavior is decided asynchronously on the control context.
package protocol

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/embershell/embershell/api/schemas"
	"github.com/embershell/embershell/internal/engine"
	"github.com/embershell/embershell/internal/taskloop"
)

// Engine is the slice of the host network engine the protocol layer drives.
// The table methods and the job starters are processing-loop confined;
// Runner exposes that loop for the registry's installation round trips.
// *engine.Engine satisfies it.
type Engine interface {
	Runner() taskloop.Runner

	SetSchemeHandler(scheme string, h engine.SchemeHandler)
	SchemeHandlerFor(scheme string) engine.SchemeHandler
	ReplaceScheme(scheme string, h engine.SchemeHandler) engine.SchemeHandler
	IsHandled(scheme string) bool

	StartStringJob(req *engine.Request, mimeType, charset string, data []byte)
	StartBufferJob(req *engine.Request, mimeType, encoding string, data []byte)
	StartFileJob(req *engine.Request, path string)
	StartErrorJob(req *engine.Request, code int)
	StartHTTPJob(req *engine.Request, rawURL, method, referrer string)
}

// Registry owns the scheme → handler table and its register/unregister/
// intercept/unintercept state machine. All mutating calls and completion
// callbacks run on the control runner; the handlers map is confined to it.
// Engine-table changes are posted to the engine's loop, one round trip per
// operation.
//
// The registry outlives every hook and job it creates; hooks hold it by
// plain reference under that invariant.
type Registry struct {
	control taskloop.Runner
	engine  Engine
	logger  *zap.Logger

	handlers map[string]schemas.ProtocolHandler // control confined
}

// NewRegistry creates a registry bridging the given control runner and
// engine.
func NewRegistry(control taskloop.Runner, eng Engine, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		control:  control,
		engine:   eng,
		logger:   logger.Named("protocol"),
		handlers: make(map[string]schemas.ProtocolHandler),
	}
}

// Register adds a handler for a scheme the engine does not yet handle, then
// installs the factory hook on the engine loop. complete runs on the control
// runner with nil on success or AlreadyRegisteredError.
func (r *Registry) Register(scheme string, handler schemas.ProtocolHandler, complete func(error)) {
	taskloop.PostAndReplyResult(r.engine.Runner(), r.control,
		func() bool { return r.engine.IsHandled(scheme) },
		func(handled bool) { r.onRegister(scheme, handler, complete, handled) })
}

func (r *Registry) onRegister(scheme string, handler schemas.ProtocolHandler, complete func(error), handled bool) {
	if handled || r.contains(scheme) {
		complete(&AlreadyRegisteredError{Scheme: scheme})
		return
	}

	// Insert before the engine hop so a racing second Register sees the
	// entry and is rejected deterministically.
	r.handlers[scheme] = handler
	taskloop.PostAndReply(r.engine.Runner(), r.control,
		func() { r.engine.SetSchemeHandler(scheme, &customSchemeHandler{registry: r}) },
		func() {
			r.logger.Info("registered protocol", zap.String("scheme", scheme))
			complete(nil)
		})
}

// Unregister removes a registered scheme's handler and clears the engine's
// slot. complete runs on the control runner with nil on success or
// NotRegisteredError.
func (r *Registry) Unregister(scheme string, complete func(error)) {
	if !r.contains(scheme) {
		complete(&NotRegisteredError{Scheme: scheme})
		return
	}

	delete(r.handlers, scheme)
	taskloop.PostAndReply(r.engine.Runner(), r.control,
		func() { r.engine.SetSchemeHandler(scheme, nil) },
		func() {
			r.logger.Info("unregistered protocol", zap.String("scheme", scheme))
			complete(nil)
		})
}

// Intercept replaces the engine's existing handler for a scheme with a hook
// that remembers it. complete runs on the control runner with nil on
// success, NothingToInterceptError, or CannotInterceptCustomSchemeError.
func (r *Registry) Intercept(scheme string, handler schemas.ProtocolHandler, complete func(error)) {
	taskloop.PostAndReplyResult(r.engine.Runner(), r.control,
		func() bool { return r.engine.IsHandled(scheme) },
		func(handled bool) { r.onIntercept(scheme, handler, complete, handled) })
}

func (r *Registry) onIntercept(scheme string, handler schemas.ProtocolHandler, complete func(error), handled bool) {
	if !handled {
		complete(&NothingToInterceptError{Scheme: scheme})
		return
	}
	if r.contains(scheme) {
		complete(&CannotInterceptCustomSchemeError{Scheme: scheme})
		return
	}

	r.handlers[scheme] = handler
	taskloop.PostAndReply(r.engine.Runner(), r.control,
		func() {
			original := r.engine.SchemeHandlerFor(scheme)
			if original == nil {
				// Interception was approved against a handled scheme; the
				// engine table losing it mid-flight means operations for
				// this scheme were issued out of order.
				panic(fmt.Sprintf("protocol: intercepting scheme %q with no engine handler", scheme))
			}
			r.engine.ReplaceScheme(scheme, &customSchemeHandler{registry: r, original: original})
		},
		func() {
			r.logger.Info("intercepting protocol", zap.String("scheme", scheme))
			complete(nil)
		})
}

// Unintercept removes an intercepting handler and restores the original one
// captured at interception time. complete runs on the control runner with
// nil on success or NotRegisteredError.
func (r *Registry) Unintercept(scheme string, complete func(error)) {
	if !r.contains(scheme) {
		complete(&NotRegisteredError{Scheme: scheme})
		return
	}

	delete(r.handlers, scheme)
	taskloop.PostAndReply(r.engine.Runner(), r.control,
		func() {
			hook, ok := r.engine.SchemeHandlerFor(scheme).(*customSchemeHandler)
			if !ok || hook.original == nil {
				panic(fmt.Sprintf("protocol: unintercepting scheme %q with no captured original handler", scheme))
			}
			r.engine.ReplaceScheme(scheme, hook.releaseOriginal())
		},
		func() {
			r.logger.Info("unintercepted protocol", zap.String("scheme", scheme))
			complete(nil)
		})
}

// LookupHandler returns the handler for a scheme, or nil. Control confined;
// the decision dispatcher calls it per request.
func (r *Registry) LookupHandler(scheme string) schemas.ProtocolHandler {
	return r.handlers[scheme]
}

// IsHandled asks the engine whether a scheme is handled and replies on the
// control runner.
func (r *Registry) IsHandled(scheme string, reply func(bool)) {
	taskloop.PostAndReplyResult(r.engine.Runner(), r.control,
		func() bool { return r.engine.IsHandled(scheme) },
		reply)
}

func (r *Registry) contains(scheme string) bool {
	_, ok := r.handlers[scheme]
	return ok
}
