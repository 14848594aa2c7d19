// internal/scripting/bindings.go
package scripting

import (
	"fmt"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/embershell/embershell/api/schemas"
	"github.com/embershell/embershell/internal/engine"
	"github.com/embershell/embershell/internal/protocol"
)

// jobConstructors defines the tagged job-request constructors scripts use
// as handler return values. Decoding keys off the constructor name.
const jobConstructors = `
function RequestStringJob(options) {
	options = options || {};
	this.mimeType = options.mimeType;
	this.charset = options.charset;
	this.data = options.data;
}
function RequestBufferJob(options) {
	options = options || {};
	this.mimeType = options.mimeType;
	this.encoding = options.encoding;
	this.data = options.data;
}
function RequestFileJob(options) {
	options = options || {};
	this.path = options.path;
}
function RequestErrorJob(options) {
	options = options || {};
	this.error = options.error;
}
function RequestHttpJob(options) {
	options = options || {};
	this.url = options.url;
	this.method = options.method;
	this.referrer = options.referrer;
}
`

// bridge exposes the protocol registry to scripts. It lives entirely on the
// event loop goroutine; every method below runs there, which is also where
// the registry's completion callbacks land, so promise settlement is safe.
type bridge struct {
	vm       *goja.Runtime
	registry *protocol.Registry
	engine   *engine.Engine
	logger   *zap.Logger
}

// Install publishes the `protocol` global and the job-request constructors
// into the runtime. It blocks until the loop has performed the
// installation.
func Install(rt *Runtime, registry *protocol.Registry, eng *engine.Engine, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	done := make(chan error, 1)
	rt.loop.RunOnLoop(func(vm *goja.Runtime) {
		b := &bridge{vm: vm, registry: registry, engine: eng, logger: logger.Named("bindings")}
		done <- b.install()
	})
	return <-done
}

func (b *bridge) install() error {
	if _, err := b.vm.RunScript("embershell:job_constructors", jobConstructors); err != nil {
		return fmt.Errorf("installing job constructors: %w", err)
	}

	obj := b.vm.NewObject()
	methods := map[string]func(goja.FunctionCall) goja.Value{
		"registerProtocol":        b.registerProtocol,
		"unregisterProtocol":      b.unregisterProtocol,
		"interceptProtocol":       b.interceptProtocol,
		"uninterceptProtocol":     b.uninterceptProtocol,
		"isHandledProtocol":       b.isHandledProtocol,
		"registerStandardSchemes": b.registerStandardSchemes,
	}
	for name, fn := range methods {
		if err := obj.Set(name, fn); err != nil {
			return fmt.Errorf("binding protocol.%s: %w", name, err)
		}
	}
	if err := b.vm.Set("protocol", obj); err != nil {
		return fmt.Errorf("publishing protocol global: %w", err)
	}
	return nil
}

// registerProtocol(scheme, handler) -> Promise<void>
func (b *bridge) registerProtocol(call goja.FunctionCall) goja.Value {
	return b.mutateWithHandler(call, "registerProtocol", b.registry.Register)
}

// interceptProtocol(scheme, handler) -> Promise<void>
func (b *bridge) interceptProtocol(call goja.FunctionCall) goja.Value {
	return b.mutateWithHandler(call, "interceptProtocol", b.registry.Intercept)
}

// unregisterProtocol(scheme) -> Promise<void>
func (b *bridge) unregisterProtocol(call goja.FunctionCall) goja.Value {
	return b.mutate(call, b.registry.Unregister)
}

// uninterceptProtocol(scheme) -> Promise<void>
func (b *bridge) uninterceptProtocol(call goja.FunctionCall) goja.Value {
	return b.mutate(call, b.registry.Unintercept)
}

// isHandledProtocol(scheme) -> Promise<bool>
func (b *bridge) isHandledProtocol(call goja.FunctionCall) goja.Value {
	scheme := call.Argument(0).String()
	promise, resolve, _ := b.vm.NewPromise()
	b.registry.IsHandled(scheme, func(handled bool) {
		resolve(handled)
	})
	return b.vm.ToValue(promise)
}

// registerStandardSchemes(schemes) is fire and forget, with no completion signal.
func (b *bridge) registerStandardSchemes(call goja.FunctionCall) goja.Value {
	var schemes []string
	if arr, ok := call.Argument(0).Export().([]any); ok {
		for _, v := range arr {
			if s, ok := v.(string); ok {
				schemes = append(schemes, s)
			}
		}
	}
	b.engine.RegisterStandardSchemes(schemes)
	return goja.Undefined()
}

func (b *bridge) mutateWithHandler(
	call goja.FunctionCall,
	name string,
	op func(string, schemas.ProtocolHandler, func(error)),
) goja.Value {
	scheme := call.Argument(0).String()
	promise, resolve, reject := b.vm.NewPromise()

	fn, ok := goja.AssertFunction(call.Argument(1))
	if !ok {
		reject(b.vm.NewTypeError("%s: handler must be a function", name))
		return b.vm.ToValue(promise)
	}

	op(scheme, b.wrapHandler(scheme, fn), func(err error) {
		if err != nil {
			reject(b.vm.NewGoError(err))
			return
		}
		resolve(goja.Undefined())
	})
	return b.vm.ToValue(promise)
}

func (b *bridge) mutate(call goja.FunctionCall, op func(string, func(error))) goja.Value {
	scheme := call.Argument(0).String()
	promise, resolve, reject := b.vm.NewPromise()
	op(scheme, func(err error) {
		if err != nil {
			reject(b.vm.NewGoError(err))
			return
		}
		resolve(goja.Undefined())
	})
	return b.vm.ToValue(promise)
}

// wrapHandler adapts a JS callable to the registry's handler contract. The
// wrapper is only ever invoked on the loop goroutine, so touching the VM is
// safe. A throwing handler degrades to an unclassifiable result rather than
// failing the request pipeline.
func (b *bridge) wrapHandler(scheme string, fn goja.Callable) schemas.ProtocolHandler {
	return func(req schemas.Request) any {
		reqObj := b.vm.NewObject()
		_ = reqObj.Set("method", req.Method)
		_ = reqObj.Set("url", req.URL)
		_ = reqObj.Set("referrer", req.Referrer)

		result, err := fn(goja.Undefined(), reqObj)
		if err != nil {
			b.logger.Warn("protocol handler threw",
				zap.String("scheme", scheme),
				zap.Error(err))
			return nil
		}
		return b.decodeResult(result)
	}
}

// decodeResult translates a handler's return value into the schemas shapes
// the classifier understands, copying script-owned buffers out immediately.
// Unrecognized values pass through as their plain export and fall to the
// classifier's default arm.
func (b *bridge) decodeResult(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	if s, ok := v.Export().(string); ok {
		return s
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.Export()
	}

	switch constructorName(obj) {
	case "RequestStringJob":
		return schemas.StringJobRequest{
			MimeType: b.stringField(obj, "mimeType"),
			Charset:  b.stringField(obj, "charset"),
			Data:     b.stringField(obj, "data"),
		}
	case "RequestBufferJob":
		return schemas.BufferJobRequest{
			MimeType: b.stringField(obj, "mimeType"),
			Encoding: b.stringField(obj, "encoding"),
			Data:     copyBufferField(obj.Get("data")),
		}
	case "RequestFileJob":
		return schemas.FileJobRequest{Path: b.stringField(obj, "path")}
	case "RequestErrorJob":
		code := engine.ErrCodeNotImplemented
		if v := obj.Get("error"); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
			code = int(v.ToInteger())
		}
		return schemas.ErrorJobRequest{Code: code}
	case "RequestHttpJob":
		return schemas.HTTPJobRequest{
			URL:      b.stringField(obj, "url"),
			Method:   b.stringField(obj, "method"),
			Referrer: b.stringField(obj, "referrer"),
		}
	}
	return v.Export()
}

func (b *bridge) stringField(obj *goja.Object, key string) string {
	v := obj.Get(key)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

// copyBufferField copies a script buffer into an owned byte slice. The
// script value's lifetime is not guaranteed to outlive the handler call.
func copyBufferField(v goja.Value) []byte {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	switch data := v.Export().(type) {
	case goja.ArrayBuffer:
		return append([]byte(nil), data.Bytes()...)
	case []byte:
		return append([]byte(nil), data...)
	case string:
		return []byte(data)
	}
	return nil
}

func constructorName(obj *goja.Object) string {
	ctor, ok := obj.Get("constructor").(*goja.Object)
	if !ok {
		return ""
	}
	name := ctor.Get("name")
	if name == nil {
		return ""
	}
	return name.String()
}
