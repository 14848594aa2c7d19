// internal/scripting/runtime.go

// Package scripting hosts the control context: a goja VM driven by a
// goja_nodejs event loop. All script execution, protocol registry mutation,
// and handler invocation happens on that loop's goroutine.
package scripting

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"go.uber.org/zap"

	"github.com/embershell/embershell/internal/taskloop"
)

// Runtime wraps the script event loop. It is the process's control context;
// its Runner is what the protocol registry serializes on.
type Runtime struct {
	loop   *eventloop.EventLoop
	logger *zap.Logger
}

// NewRuntime creates an unstarted runtime.
func NewRuntime(logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{
		loop:   eventloop.NewEventLoop(),
		logger: logger.Named("scripting"),
	}
}

// Start launches the event loop goroutine.
func (r *Runtime) Start() { r.loop.Start() }

// Stop waits for pending loop jobs and stops the loop.
func (r *Runtime) Stop() { r.loop.Stop() }

// Runner adapts the event loop to the taskloop contract so the protocol
// layer can post control-context work without knowing about goja.
func (r *Runtime) Runner() taskloop.Runner {
	return loopRunner{loop: r.loop}
}

// RunScript evaluates src on the loop and waits for the evaluation (not any
// async work it schedules) to finish. name shows up in stack traces.
func (r *Runtime) RunScript(ctx context.Context, name, src string) error {
	done := make(chan error, 1)
	r.loop.RunOnLoop(func(vm *goja.Runtime) {
		_, err := vm.RunScript(name, src)
		done <- err
	})

	select {
	case err := <-done:
		if err != nil {
			var jsErr *goja.Exception
			if errors.As(err, &jsErr) {
				return fmt.Errorf("script %s threw: %s", name, jsErr.String())
			}
			return fmt.Errorf("script %s failed: %w", name, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for script %s: %w", name, ctx.Err())
	}
}

type loopRunner struct {
	loop *eventloop.EventLoop
}

// Post schedules fn on the event loop goroutine.
func (lr loopRunner) Post(fn func()) {
	lr.loop.RunOnLoop(func(*goja.Runtime) { fn() })
}
