package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	cbus "github.com/next-trace/scg-placeholder-bus/contract/bus"
	berr "github.com/next-trace/scg-placeholder-bus/contract/errors"
)

// Bus is a thread-safe in-process implementation of cbus.EventBus.
// It stands in for the host runtime in tests, examples and single-process setups.
//
// Events sent with SendEvent are tagged cbus.SourceServer, the way the host tags
// script-sent events. Each event is delivered on its own goroutine, so
// SendEvent never blocks on subscribers.
type Bus struct {
	mu     sync.Mutex
	subs   []*subscriber
	sent   []cbus.Event
	closed bool
	wg     sync.WaitGroup
}

type subscriber struct {
	cb     cbus.Callback
	filter cbus.Filter
	active atomic.Bool
}

// Ensure Bus implements the contract.
var _ cbus.EventBus = (*Bus)(nil)

// New creates a new in-memory bus.
func New() *Bus { return &Bus{} }

func (b *Bus) Subscribe(cb cbus.Callback, filter cbus.Filter) (cbus.Subscription, error) {
	if cb == nil {
		return nil, fmt.Errorf("inmemory subscribe: nil callback: %w", berr.ErrSubscribeFailed)
	}

	s := &subscriber{cb: cb, filter: filter}
	s.active.Store(true)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("inmemory subscribe: %w", errors.Join(berr.ErrSubscribeFailed, berr.ErrClosed))
	}

	b.subs = append(b.subs, s)

	return cbus.SubscriptionFunc(func() error {
		b.remove(s)
		return nil
	}), nil
}

func (b *Bus) remove(s *subscriber) {
	if !s.active.CompareAndSwap(true, false) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for i, cur := range b.subs {
		if cur == s {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// SendEvent publishes a server-originated event.
func (b *Bus) SendEvent(ctx context.Context, id, message string) error {
	return b.Emit(ctx, cbus.Event{ID: id, Message: message, Source: cbus.SourceServer})
}

// Emit publishes an event with an explicit source, e.g. to simulate entity or
// block originated script events.
func (b *Bus) Emit(ctx context.Context, ev cbus.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("inmemory send %s: %w", ev.ID, errors.Join(berr.ErrPublishFailed, berr.ErrClosed))
	}

	b.sent = append(b.sent, ev)

	targets := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if s.filter.Match(ev.ID) {
			targets = append(targets, s)
		}
	}

	b.wg.Add(1)
	b.mu.Unlock()

	dctx := context.WithoutCancel(ctx)

	go func() {
		defer b.wg.Done()

		for _, s := range targets {
			if s.active.Load() {
				s.cb(dctx, ev)
			}
		}
	}()

	return nil
}

// Sent returns a copy of every event published so far.
func (b *Bus) Sent() []cbus.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]cbus.Event(nil), b.sent...)
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subs)
}

// Close rejects further events and waits for in-flight deliveries.
func (b *Bus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()

	return nil
}
