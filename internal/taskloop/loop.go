// internal/taskloop/loop.go

// Package taskloop provides serialized execution contexts and the
// post-and-reply protocol used to move work between them. Each Loop runs its
// tasks on a single dedicated goroutine, so state confined to a loop needs no
// further synchronization.
package taskloop

import (
	"sync"

	"go.uber.org/zap"
)

// Runner accepts work to be executed on some serialized context. Post must
// never block the caller on the execution of fn; implementations queue the
// task and return immediately.
type Runner interface {
	Post(fn func())
}

// Loop is a Runner backed by one goroutine draining an unbounded FIFO queue.
// Tasks run in post order.
type Loop struct {
	name   string
	logger *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	started bool
	stopped bool

	done chan struct{}
}

// NewLoop creates a new, unstarted Loop. The name shows up in log output.
func NewLoop(name string, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loop{
		name:   name,
		logger: logger.Named("taskloop").With(zap.String("loop", name)),
		done:   make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Start launches the loop goroutine. Calling Start twice is a no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		l.logger.Warn("Start called on a running loop")
		return
	}
	l.started = true
	go l.run()
}

// Stop drains the pending queue and waits for the loop goroutine to exit.
// Tasks posted after Stop are dropped.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.started || l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.cond.Signal()
	l.mu.Unlock()
	<-l.done
}

// Post queues fn for execution on the loop goroutine. It never blocks on the
// task itself; the queue is unbounded.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		l.logger.Debug("task posted after stop, dropping")
		return
	}
	l.queue = append(l.queue, fn)
	l.cond.Signal()
	l.mu.Unlock()
}

func (l *Loop) run() {
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.stopped {
			l.cond.Wait()
		}
		if len(l.queue) == 0 && l.stopped {
			l.mu.Unlock()
			close(l.done)
			return
		}
		fn := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
	}
}

// Immediate is a Runner that executes posted work synchronously on the
// calling goroutine. It exists for tests that want the cross-context hops of
// PostAndReply to resolve deterministically, inline.
type Immediate struct{}

// Post runs fn before returning.
func (Immediate) Post(fn func()) { fn() }

// PostAndReply runs task on target and, once it has finished, runs reply on
// origin. Exactly one reply is produced per request.
func PostAndReply(target, origin Runner, task, reply func()) {
	target.Post(func() {
		task()
		origin.Post(reply)
	})
}

// PostAndReplyResult runs task on target and hands its result to reply on
// origin. Exactly one reply is produced per request.
func PostAndReplyResult[T any](target, origin Runner, task func() T, reply func(T)) {
	target.Post(func() {
		v := task()
		origin.Post(func() { reply(v) })
	})
}
