// internal/scripting/bindings_test.go
package scripting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/embershell/embershell/internal/config"
	"github.com/embershell/embershell/internal/engine"
	"github.com/embershell/embershell/internal/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	engine  *engine.Engine
	runtime *Runtime
}

// newHarness wires the full stack: a real engine loop, a real script event
// loop as the control context, and the protocol bindings between them.
func newHarness(t *testing.T) *harness {
	t.Helper()

	eng := engine.New(config.EngineConfig{RequestTimeout: 5 * time.Second}, zap.NewNop())
	eng.Start()
	t.Cleanup(eng.Stop)

	rt := NewRuntime(zap.NewNop())
	rt.Start()
	t.Cleanup(rt.Stop)

	registry := protocol.NewRegistry(rt.Runner(), eng, zap.NewNop())
	require.NoError(t, Install(rt, registry, eng, zap.NewNop()))

	return &harness{engine: eng, runtime: rt}
}

func (h *harness) run(t *testing.T, src string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.runtime.RunScript(ctx, "test.js", src))
}

// eval evaluates an expression on the loop and returns its string form.
func (h *harness) eval(t *testing.T, expr string) string {
	t.Helper()
	ch := make(chan string, 1)
	h.runtime.loop.RunOnLoop(func(vm *goja.Runtime) {
		v, err := vm.RunString(expr)
		if err != nil {
			ch <- "eval error: " + err.Error()
			return
		}
		ch <- v.String()
	})
	select {
	case s := <-ch:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("eval timed out")
		return ""
	}
}

// waitForState polls the script-side `state` global until it reaches want.
// Registrations settle asynchronously after two loop hops, so tests park on
// this instead of sleeping.
func (h *harness) waitForState(t *testing.T, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.eval(t, "globalThis.state") == want
	}, 5*time.Second, 10*time.Millisecond, "state never became %q", want)
}

const settle = `
	.then(function() { globalThis.state = 'ok'; })
	.catch(function(e) { globalThis.state = 'err:' + e.message; });`

func TestRegisterAndFetch_String(t *testing.T) {
	h := newHarness(t)

	h.run(t, `
		globalThis.state = 'pending';
		protocol.registerProtocol('ember', function(req) {
			return 'hello from ' + req.url;
		})`+settle)
	h.waitForState(t, "ok")

	resp, err := h.engine.Fetch(context.Background(), "GET", "ember://host/page", "")
	require.NoError(t, err)
	require.Equal(t, "text/plain", resp.MimeType)
	require.Equal(t, "UTF-8", resp.Charset)
	require.Equal(t, "hello from ember://host/page", string(resp.Data))
}

func TestRegisterAndFetch_StringJob(t *testing.T) {
	h := newHarness(t)

	h.run(t, `
		globalThis.state = 'pending';
		protocol.registerProtocol('ember', function(req) {
			return new RequestStringJob({mimeType: 'text/html', charset: 'UTF-8', data: '<b>x</b>'});
		})`+settle)
	h.waitForState(t, "ok")

	resp, err := h.engine.Fetch(context.Background(), "GET", "ember://host/", "")
	require.NoError(t, err)
	require.Equal(t, "text/html", resp.MimeType)
	require.Equal(t, "<b>x</b>", string(resp.Data))
}

func TestRegisterAndFetch_BufferJob(t *testing.T) {
	h := newHarness(t)

	h.run(t, `
		globalThis.state = 'pending';
		protocol.registerProtocol('ember', function(req) {
			return new RequestBufferJob({
				mimeType: 'application/octet-stream',
				data: new Uint8Array([1, 2, 3]).buffer,
			});
		})`+settle)
	h.waitForState(t, "ok")

	resp, err := h.engine.Fetch(context.Background(), "GET", "ember://host/", "")
	require.NoError(t, err)
	require.Equal(t, "application/octet-stream", resp.MimeType)
	require.Equal(t, []byte{1, 2, 3}, resp.Data)
}

func TestRegisterAndFetch_ErrorJob(t *testing.T) {
	h := newHarness(t)

	h.run(t, `
		globalThis.state = 'pending';
		protocol.registerProtocol('ember', function(req) {
			return new RequestErrorJob({error: 404});
		})`+settle)
	h.waitForState(t, "ok")

	_, err := h.engine.Fetch(context.Background(), "GET", "ember://host/", "")
	var statusErr *engine.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, 404, statusErr.Code)
}

func TestRegisterAndFetch_ErrorJobDefaultCode(t *testing.T) {
	h := newHarness(t)

	h.run(t, `
		globalThis.state = 'pending';
		protocol.registerProtocol('ember', function(req) {
			return new RequestErrorJob({});
		})`+settle)
	h.waitForState(t, "ok")

	_, err := h.engine.Fetch(context.Background(), "GET", "ember://host/", "")
	var statusErr *engine.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, engine.ErrCodeNotImplemented, statusErr.Code)
}

func TestRegisterAndFetch_FileJob(t *testing.T) {
	h := newHarness(t)

	path := filepath.Join(t.TempDir(), "index.html")
	require.NoError(t, os.WriteFile(path, []byte("<p>from disk</p>"), 0o644))

	h.run(t, fmt.Sprintf(`
		globalThis.state = 'pending';
		protocol.registerProtocol('ember', function(req) {
			return new RequestFileJob({path: %q});
		})`, path)+settle)
	h.waitForState(t, "ok")

	resp, err := h.engine.Fetch(context.Background(), "GET", "ember://host/", "")
	require.NoError(t, err)
	require.Contains(t, resp.MimeType, "text/html")
	require.Equal(t, "<p>from disk</p>", string(resp.Data))
}

func TestDoubleRegisterRejects(t *testing.T) {
	h := newHarness(t)

	h.run(t, `
		globalThis.state = 'pending';
		protocol.registerProtocol('ember', function() { return 'a'; })
			.then(function() {
				return protocol.registerProtocol('ember', function() { return 'b'; });
			})`+settle)

	require.Eventually(t, func() bool {
		state := h.eval(t, "globalThis.state")
		return state != "pending" && state != "ok"
	}, 5*time.Second, 10*time.Millisecond)
	require.Contains(t, h.eval(t, "globalThis.state"), "already registered")
}

func TestUnregister_ThenFetchFails(t *testing.T) {
	h := newHarness(t)

	h.run(t, `
		globalThis.state = 'pending';
		protocol.registerProtocol('ember', function() { return 'x'; })
			.then(function() { return protocol.unregisterProtocol('ember'); })`+settle)
	h.waitForState(t, "ok")

	_, err := h.engine.Fetch(context.Background(), "GET", "ember://host/", "")
	var notHandled *engine.NotHandledError
	require.ErrorAs(t, err, &notHandled)
}

func TestIsHandledProtocol(t *testing.T) {
	h := newHarness(t)

	h.run(t, `
		globalThis.state = typeof protocol.isHandledProtocol;`)
	h.waitForState(t, "function")

	h.run(t, `
		globalThis.state = 'pending';
		protocol.registerProtocol('ember', function() { return 'x'; })
			.then(function() { return protocol.isHandledProtocol('ember'); })
			.then(function(handled) { globalThis.state = 'handled:' + handled; });`)
	h.waitForState(t, "handled:true")

	h.run(t, `
		globalThis.state = 'pending';
		protocol.isHandledProtocol('ghost')
			.then(function(handled) { globalThis.state = 'handled:' + handled; });`)
	h.waitForState(t, "handled:false")
}

func TestRegisterStandardSchemes(t *testing.T) {
	h := newHarness(t)

	h.run(t, `protocol.registerStandardSchemes(['ember', 'app']);`)

	require.Eventually(t, func() bool {
		return len(h.engine.StandardSchemes()) == 2
	}, 5*time.Second, 10*time.Millisecond)
	require.ElementsMatch(t, []string{"ember", "app"}, h.engine.StandardSchemes())
}

func TestThrowingHandlerDegrades(t *testing.T) {
	h := newHarness(t)

	h.run(t, `
		globalThis.state = 'pending';
		protocol.registerProtocol('ember', function() {
			throw new Error('handler exploded');
		})`+settle)
	h.waitForState(t, "ok")

	_, err := h.engine.Fetch(context.Background(), "GET", "ember://host/", "")
	var statusErr *engine.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, engine.ErrCodeNotImplemented, statusErr.Code)
}
