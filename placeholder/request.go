package placeholder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	cbus "github.com/next-trace/scg-placeholder-bus/contract/bus"
)

// pending is one outstanding request. Exactly one settle call wins; the
// winner releases the subscription and timer and delivers the result.
type pending struct {
	settled atomic.Bool
	done    chan string
	logger  *slog.Logger

	mu    sync.Mutex
	sub   cbus.Subscription
	timer cbus.Timer
}

func newPending(logger *slog.Logger) *pending {
	return &pending{done: make(chan string, 1), logger: logger}
}

func (p *pending) attach(sub cbus.Subscription, timer cbus.Timer) {
	p.mu.Lock()
	if sub != nil {
		p.sub = sub
	}

	if timer != nil {
		p.timer = timer
	}
	p.mu.Unlock()
}

// settle claims the request, releases its resources, runs onSettle and then
// hands result to the waiting caller. Later calls return false and do nothing.
func (p *pending) settle(result string, onSettle func()) bool {
	if !p.settled.CompareAndSwap(false, true) {
		return false
	}

	p.release()

	if onSettle != nil {
		onSettle()
	}

	p.done <- result

	return true
}

func (p *pending) release() {
	p.mu.Lock()
	sub, timer := p.sub, p.timer
	p.sub, p.timer = nil, nil
	p.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			p.logger.Debug("placeholder response unsubscribe failed", "err", err)
		}
	}

	if timer != nil {
		timer.Stop()
	}
}

// Request asks whichever addon provides id for its value. It always returns a
// string: the handler's result, TimeoutSentinel when nothing answered within
// timeout (or ctx ended first), or InvalidSentinel when the answer could not
// be decoded. A non-positive timeout uses the configured default.
func (a *API) Request(ctx context.Context, id string, params Params, timeout time.Duration) string {
	if timeout <= 0 {
		timeout = a.timeout
	}

	start := time.Now()
	requestID := NewRequestID(id, a.token())
	channel := ResponseChannel(a.namespace, requestID)
	p := newPending(a.logger.With("id", id, "requestId", requestID))

	outcome := func(result string, o cbus.Outcome) {
		p.settle(result, func() {
			elapsed := time.Since(start)
			a.observer.ObserveRequest(id, o, elapsed)

			if a.debug && o == cbus.OutcomeResolved {
				a.logger.InfoContext(ctx, "placeholder request resolved", "id", id, "elapsed", elapsed)
			}
		})
	}

	sub, err := a.bus.Subscribe(func(_ context.Context, ev cbus.Event) {
		if ev.ID != channel || p.settled.Load() {
			return
		}

		result, ok := decodeResult(ev.Message)
		if !ok {
			outcome(result, cbus.OutcomeInvalid)
			return
		}

		outcome(result, cbus.OutcomeResolved)
	}, cbus.Filter{Namespaces: []string{a.namespace}})
	if err != nil {
		a.logger.WarnContext(ctx, "placeholder request subscribe failed", "id", id, "err", err)
		outcome(TimeoutSentinel, cbus.OutcomeTimeout)

		return <-p.done
	}

	p.attach(sub, nil)

	timer := a.sched.RunAfterDelay(func() { outcome(TimeoutSentinel, cbus.OutcomeTimeout) }, timeout)
	p.attach(nil, timer)

	// a settle that raced attach above left these behind
	if p.settled.Load() {
		p.release()
	}

	body, err := encodeRequest(id, params, requestID)
	if err == nil && !p.settled.Load() {
		err = a.bus.SendEvent(ctx, RequestChannel(a.namespace), body)
	}

	if err != nil {
		a.logger.WarnContext(ctx, "placeholder request send failed", "id", id, "requestId", requestID, "err", err)
		outcome(TimeoutSentinel, cbus.OutcomeTimeout)
	}

	select {
	case r := <-p.done:
		return r
	case <-ctx.Done():
		outcome(TimeoutSentinel, cbus.OutcomeTimeout)
		return <-p.done
	}
}
