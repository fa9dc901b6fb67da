// Package actorkit provides a single-goroutine-per-actor mailbox runner:
// each actor processes its messages strictly in arrival order on its own
// goroutine, suspending only at explicit blocking points (mailbox receive,
// I/O, sleep/backoff). It generalizes the worker-pool-with-panic-recovery
// idiom down to one worker per actor instead of a shared pool.
package actorkit

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Message is a unit of mailbox work; Handle runs on the actor's own
// goroutine and must not block indefinitely without observing ctx.
type Message interface {
	Handle(ctx context.Context)
}

// MessageFunc adapts a plain function into a Message.
type MessageFunc func(ctx context.Context)

func (f MessageFunc) Handle(ctx context.Context) { f(ctx) }

// PanicError wraps a recovered panic value from inside a Message handler.
type PanicError struct {
	Recovered any
}

func (e *PanicError) Error() string { return "actorkit: recovered panic in actor mailbox" }

// Actor runs one goroutine that drains a mailbox channel in arrival order.
type Actor struct {
	name   string
	logger *zap.Logger
	mail   chan Message
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	running atomic.Bool

	panicsRecovered atomic.Int64
	processed       atomic.Int64
}

// NewActor creates an actor with the given mailbox capacity. A capacity
// of 0 makes Send block until the previous message has been handled,
// which is the strict backpressure shape; a positive capacity allows
// bounded-async delivery.
func NewActor(name string, mailboxCapacity int, logger *zap.Logger) *Actor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Actor{
		name:   name,
		logger: logger.Named(name),
		mail:   make(chan Message, mailboxCapacity),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the actor's single goroutine.
func (a *Actor) Start() {
	if a.running.Swap(true) {
		return
	}
	a.wg.Add(1)
	go a.run()
}

func (a *Actor) run() {
	defer a.wg.Done()
	for {
		select {
		case <-a.ctx.Done():
			return
		case msg, ok := <-a.mail:
			if !ok {
				return
			}
			a.handle(msg)
		}
	}
}

func (a *Actor) handle(msg Message) {
	defer func() {
		if r := recover(); r != nil {
			a.panicsRecovered.Add(1)
			a.logger.Error("actor recovered from panic", zap.Any("panic", r))
		}
		a.processed.Add(1)
	}()
	msg.Handle(a.ctx)
}

// Send enqueues msg, blocking if the mailbox is at (or beyond, i.e. at) a
// capacity-0 rendezvous. It returns false if the actor has already
// stopped.
func (a *Actor) Send(msg Message) bool {
	select {
	case a.mail <- msg:
		return true
	case <-a.ctx.Done():
		return false
	}
}

// TrySend enqueues msg without blocking, returning false if the mailbox
// is full or the actor has stopped.
func (a *Actor) TrySend(msg Message) bool {
	select {
	case a.mail <- msg:
		return true
	default:
		return false
	}
}

// Stop cancels the actor's context and waits for its goroutine to exit.
func (a *Actor) Stop() {
	a.cancel()
	a.wg.Wait()
}

// Processed returns the number of messages handled so far.
func (a *Actor) Processed() int64 { return a.processed.Load() }

// PanicsRecovered returns the number of panics recovered so far.
func (a *Actor) PanicsRecovered() int64 { return a.panicsRecovered.Load() }
