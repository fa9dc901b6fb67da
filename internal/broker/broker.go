// Package broker fans market-event envelopes out to subscribed recipients,
// preserving per-recipient order and counting (never panicking on) failed
// deliveries to dead or saturated recipients.
package broker

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// Recipient accepts envelopes for subjects it is registered under. Send
// must not block the broker's own goroutine when Async is false for the
// bounded implementation; the unbounded implementation never blocks.
type Recipient interface {
	// Send attempts to deliver env, returning false if the recipient is
	// dead (closed) or its bounded queue is full.
	Send(env types.MarketEventEnvelope) bool
}

// RecipientFunc adapts a synchronous handler into a Recipient that never
// fails (the unbounded delivery shape).
type RecipientFunc func(env types.MarketEventEnvelope)

func (f RecipientFunc) Send(env types.MarketEventEnvelope) bool {
	f(env)
	return true
}

// BoundedRecipient delivers into a fixed-capacity channel; Send reports
// false (without blocking) when the channel is full.
type BoundedRecipient struct {
	ch chan types.MarketEventEnvelope
}

// NewBoundedRecipient creates a recipient backed by a channel of the given
// capacity. The caller drains ch.
func NewBoundedRecipient(capacity int) (*BoundedRecipient, <-chan types.MarketEventEnvelope) {
	ch := make(chan types.MarketEventEnvelope, capacity)
	return &BoundedRecipient{ch: ch}, ch
}

func (r *BoundedRecipient) Send(env types.MarketEventEnvelope) bool {
	select {
	case r.ch <- env:
		return true
	default:
		return false
	}
}

var broadcastFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "broadcast_failures_total",
	Help: "Count of envelope deliveries that failed because a recipient was dead or its queue was full.",
}, []string{"pair", "channel"})

func init() {
	prometheus.MustRegister(broadcastFailures)
}

// MarketBroker fans MarketEventEnvelopes out to recipients registered
// under the envelope's subject. It is strictly at-most-once: there is no
// retry and no reordering, and a dead recipient only increments a counter.
type MarketBroker struct {
	mu         sync.RWMutex
	recipients map[types.Subject][]Recipient
	logger     *zap.Logger
}

// NewMarketBroker creates an empty broker.
func NewMarketBroker(logger *zap.Logger) *MarketBroker {
	return &MarketBroker{
		recipients: make(map[types.Subject][]Recipient),
		logger:     logger.Named("broker"),
	}
}

// Register appends recipient to the subject's bucket. Idempotence is not
// required: registering the same recipient twice delivers to it twice.
func (b *MarketBroker) Register(subject types.Subject, recipient Recipient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recipients[subject] = append(b.recipients[subject], recipient)
}

// Broadcast computes the subject from env and delivers it to every
// registered recipient, in registration order. An unregistered subject is
// a silent drop (logged at debug, not error). A recipient send failure
// increments broadcast_failures and does not interrupt delivery to the
// remaining recipients.
func (b *MarketBroker) Broadcast(env types.MarketEventEnvelope) {
	subject := types.SubjectOf(env)

	b.mu.RLock()
	recipients := b.recipients[subject]
	b.mu.RUnlock()

	if len(recipients) == 0 {
		b.logger.Debug("broadcast: no recipients for subject",
			zap.String("pair", string(subject.Pair)),
			zap.String("channel", string(subject.Channel)))
		return
	}

	for _, r := range recipients {
		if !r.Send(env) {
			broadcastFailures.WithLabelValues(string(subject.Pair), string(subject.Channel)).Inc()
		}
	}
}

// Subjects returns a snapshot of every subject with at least one
// registered recipient.
func (b *MarketBroker) Subjects() []types.Subject {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.Subject, 0, len(b.recipients))
	for s := range b.recipients {
		out = append(out, s)
	}
	return out
}
