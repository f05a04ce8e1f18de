package placeholder_test

import (
	"context"
	"errors"
	"sync"
	"time"

	cbus "github.com/next-trace/scg-placeholder-bus/contract/bus"
)

// fakeBus records subscriptions and sent events; tests deliver by hand.
type fakeBus struct {
	mu       sync.Mutex
	subs     map[int]fakeSub
	next     int
	sent     []cbus.Event
	sentCh   chan cbus.Event
	subErr   error
	sendErr  error
	unsubErr error
}

type fakeSub struct {
	cb     cbus.Callback
	filter cbus.Filter
}

func newFakeBus() *fakeBus {
	return &fakeBus{subs: map[int]fakeSub{}, sentCh: make(chan cbus.Event, 16)}
}

func (f *fakeBus) Subscribe(cb cbus.Callback, filter cbus.Filter) (cbus.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.subErr != nil {
		return nil, f.subErr
	}

	id := f.next
	f.next++
	f.subs[id] = fakeSub{cb: cb, filter: filter}

	return cbus.SubscriptionFunc(func() error {
		f.mu.Lock()
		delete(f.subs, id)
		err := f.unsubErr
		f.mu.Unlock()

		return err
	}), nil
}

func (f *fakeBus) SendEvent(_ context.Context, id, message string) error {
	f.mu.Lock()
	err := f.sendErr
	ev := cbus.Event{ID: id, Message: message, Source: cbus.SourceServer}
	if err == nil {
		f.sent = append(f.sent, ev)
	}
	f.mu.Unlock()

	if err != nil {
		return err
	}

	f.sentCh <- ev

	return nil
}

// deliver invokes every matching subscriber synchronously.
func (f *fakeBus) deliver(ev cbus.Event) {
	f.mu.Lock()
	var cbs []cbus.Callback
	for _, s := range f.subs {
		if s.filter.Match(ev.ID) {
			cbs = append(cbs, s.cb)
		}
	}
	f.mu.Unlock()

	for _, cb := range cbs {
		cb(context.Background(), ev)
	}
}

func (f *fakeBus) subscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.subs)
}

func (f *fakeBus) waitSent() (cbus.Event, error) {
	select {
	case ev := <-f.sentCh:
		return ev, nil
	case <-time.After(time.Second):
		return cbus.Event{}, errors.New("nothing sent")
	}
}

// manualScheduler captures timers; tests fire them explicitly.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	f       func()
	d       time.Duration
	stopped bool
}

func (m *manualScheduler) RunAfterDelay(f func(), d time.Duration) cbus.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &manualTimer{f: f, d: d}
	m.timers = append(m.timers, t)

	return &manualHandle{m: m, t: t}
}

// fire runs the i-th timer callback even if it was stopped, modelling a
// callback that was already queued when Stop ran.
func (m *manualScheduler) fire(i int) {
	m.mu.Lock()
	t := m.timers[i]
	m.mu.Unlock()

	t.f()
}

func (m *manualScheduler) timer(i int) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.timers[i].d, m.timers[i].stopped
}

type manualHandle struct {
	m *manualScheduler
	t *manualTimer
}

func (h *manualHandle) Stop() bool {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()

	was := h.t.stopped
	h.t.stopped = true

	return !was
}

type observation struct {
	id      string
	outcome cbus.Outcome
}

type recordingObserver struct {
	mu        sync.Mutex
	requests  []observation
	responses []observation
}

func (r *recordingObserver) ObserveRequest(id string, o cbus.Outcome, _ time.Duration) {
	r.mu.Lock()
	r.requests = append(r.requests, observation{id, o})
	r.mu.Unlock()
}

func (r *recordingObserver) ObserveResponse(id string, o cbus.Outcome, _ time.Duration) {
	r.mu.Lock()
	r.responses = append(r.responses, observation{id, o})
	r.mu.Unlock()
}

func (r *recordingObserver) snapshot() ([]observation, []observation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]observation(nil), r.requests...), append([]observation(nil), r.responses...)
}
