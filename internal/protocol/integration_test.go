// internal/protocol/integration_test.go
package protocol

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/embershell/embershell/api/schemas"
	"github.com/embershell/embershell/internal/config"
	"github.com/embershell/embershell/internal/engine"
	"github.com/embershell/embershell/internal/taskloop"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// liveStack runs the registry against a real engine loop and a real control
// loop, the same wiring production uses minus the script runtime.
type liveStack struct {
	control  *taskloop.Loop
	engine   *engine.Engine
	registry *Registry
}

func newLiveStack(t *testing.T) *liveStack {
	t.Helper()

	eng := engine.New(config.EngineConfig{RequestTimeout: 5 * time.Second}, zap.NewNop())
	eng.Start()
	t.Cleanup(eng.Stop)

	control := taskloop.NewLoop("control", zap.NewNop())
	control.Start()
	t.Cleanup(control.Stop)

	return &liveStack{
		control:  control,
		engine:   eng,
		registry: NewRegistry(control, eng, zap.NewNop()),
	}
}

// registerWait issues a Register from the control loop and blocks the test
// goroutine until its completion fires.
func (s *liveStack) registerWait(t *testing.T, scheme string, h schemas.ProtocolHandler) error {
	t.Helper()
	ch := make(chan error, 1)
	s.control.Post(func() {
		s.registry.Register(scheme, h, func(err error) { ch <- err })
	})
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("registration never completed")
		return nil
	}
}

func TestLive_RegisterAndFetch(t *testing.T) {
	s := newLiveStack(t)

	require.NoError(t, s.registerWait(t, "ember", func(req schemas.Request) any {
		return "hello"
	}))

	resp, err := s.engine.Fetch(context.Background(), "GET", "ember://host/", "")
	require.NoError(t, err)
	require.Equal(t, "text/plain", resp.MimeType)
	require.Equal(t, "hello", string(resp.Data))
}

func TestLive_ConcurrentDistinctSchemes(t *testing.T) {
	s := newLiveStack(t)

	schemes := []string{"alpha", "beta", "gamma", "delta"}
	var wg sync.WaitGroup
	errs := make([]error, len(schemes))

	// Concurrent callers funnel through the control loop; per-scheme
	// outcomes must match program order regardless of interleaving.
	for i, scheme := range schemes {
		i, scheme := i, scheme
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.registerWait(t, scheme, func(schemas.Request) any { return scheme })
		}()
	}
	wg.Wait()

	for i, scheme := range schemes {
		require.NoError(t, errs[i], "scheme %s", scheme)
		resp, err := s.engine.Fetch(context.Background(), "GET", scheme+"://x/", "")
		require.NoError(t, err)
		require.Equal(t, scheme, string(resp.Data))
	}
}

func TestLive_SecondRegisterRacesFirst(t *testing.T) {
	s := newLiveStack(t)

	// Issue both registrations back to back on the control loop before
	// either installation round trip finishes; the entry-table insert on
	// the control loop makes the second lose deterministically.
	type outcome struct {
		order int
		err   error
	}
	ch := make(chan outcome, 2)
	s.control.Post(func() {
		s.registry.Register("ember", func(schemas.Request) any { return "first" },
			func(err error) { ch <- outcome{1, err} })
		s.registry.Register("ember", func(schemas.Request) any { return "second" },
			func(err error) { ch <- outcome{2, err} })
	})

	results := map[int]error{}
	for i := 0; i < 2; i++ {
		select {
		case o := <-ch:
			results[o.order] = o.err
		case <-time.After(5 * time.Second):
			t.Fatal("registrations never completed")
		}
	}

	require.NoError(t, results[1])
	var already *AlreadyRegisteredError
	require.ErrorAs(t, results[2], &already)

	resp, err := s.engine.Fetch(context.Background(), "GET", "ember://x/", "")
	require.NoError(t, err)
	require.Equal(t, "first", string(resp.Data))
}
