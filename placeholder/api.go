package placeholder

// revive:disable:max-public-structs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	cbus "github.com/next-trace/scg-placeholder-bus/contract/bus"
	berr "github.com/next-trace/scg-placeholder-bus/contract/errors"
)

// API is the placeholder request/response layer over a host event bus.
// It answers requests for the placeholders in its Registry once started, and
// resolves requests for placeholders provided by other addons.
//
// API is concurrency-safe and contains no global state.
type API struct {
	bus       cbus.EventBus
	sched     cbus.Scheduler
	registry  *Registry
	observer  cbus.Observer
	logger    *slog.Logger
	namespace string
	timeout   time.Duration
	token     func() string
	debug     bool

	mu     sync.Mutex
	sub    cbus.Subscription
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// Option configures an API instance.
type Option func(*API)

// WithRegistry shares an externally owned registry.
func WithRegistry(r *Registry) Option { return func(a *API) { a.registry = r } }

// WithNamespace overrides DefaultNamespace. Requester and responder must agree.
func WithNamespace(ns string) Option { return func(a *API) { a.namespace = ns } }

// WithScheduler replaces the timer source used for request timeouts.
func WithScheduler(s cbus.Scheduler) Option { return func(a *API) { a.sched = s } }

// WithDefaultTimeout sets the timeout used when Request gets a non-positive one.
func WithDefaultTimeout(d time.Duration) Option { return func(a *API) { a.timeout = d } }

// WithObserver reports request and response outcomes.
func WithObserver(o cbus.Observer) Option { return func(a *API) { a.observer = o } }

// WithTokenSource replaces the request id token generator.
func WithTokenSource(f func() string) Option { return func(a *API) { a.token = f } }

// WithDebug logs the latency of every resolved request.
func WithDebug(on bool) Option { return func(a *API) { a.debug = on } }

// New constructs an API over the given bus. A nil logger uses slog.Default().
func New(b cbus.EventBus, logger *slog.Logger, opts ...Option) *API {
	if logger == nil {
		logger = slog.Default()
	}

	a := &API{
		bus:       b,
		sched:     cbus.SystemScheduler{},
		registry:  NewRegistry(),
		observer:  cbus.NopObserver{},
		logger:    logger,
		namespace: DefaultNamespace,
		timeout:   cbus.Ticks(cbus.TicksPerSecond),
		token:     uuid.NewString,
	}

	for _, o := range opts {
		o(a)
	}

	return a
}

// Registry returns the registry requests are answered from.
func (a *API) Registry() *Registry { return a.registry }

// Namespace returns the channel namespace in use.
func (a *API) Namespace() string { return a.namespace }

// Listen registers a placeholder handler. See Registry.Listen.
func (a *API) Listen(id string, h Handler) { a.registry.Listen(id, h) }

// ListenFunc registers a synchronous placeholder provider.
func (a *API) ListenFunc(id string, f func(params Params) string) { a.registry.ListenFunc(id, f) }

// Start installs the responder subscription. Handlers receive a context derived
// from ctx that is canceled by Close.
func (a *API) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return fmt.Errorf("start responder: %w", berr.ErrClosed)
	}

	if a.sub != nil {
		return fmt.Errorf("start responder: %w", berr.ErrAlreadyStarted)
	}

	hctx, cancel := context.WithCancel(ctx)

	sub, err := a.bus.Subscribe(func(_ context.Context, ev cbus.Event) {
		a.onRequest(hctx, ev)
	}, cbus.Filter{Namespaces: []string{a.namespace}})
	if err != nil {
		cancel()

		return fmt.Errorf("start responder: %w", errors.Join(berr.ErrSubscribeFailed, err))
	}

	a.sub = sub
	a.cancel = cancel

	return nil
}

// Close removes the responder subscription, cancels running handlers and waits
// for them to return. It is safe to call more than once.
func (a *API) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}

	a.closed = true
	sub, cancel := a.sub, a.cancel
	a.sub, a.cancel = nil, nil
	a.mu.Unlock()

	var err error
	if sub != nil {
		err = sub.Unsubscribe()
	}

	if cancel != nil {
		cancel()
	}

	a.wg.Wait()

	return err
}

func (a *API) onRequest(ctx context.Context, ev cbus.Event) {
	if ev.Source != cbus.SourceServer || !strings.HasPrefix(ev.ID, RequestChannel(a.namespace)) {
		return
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()

		if err := a.respond(ctx, ev.Message); err != nil {
			a.logger.WarnContext(ctx, "placeholder responder error", "channel", ev.ID, "err", err)
		}
	}()
}

func (a *API) respond(ctx context.Context, msg string) (err error) {
	start := time.Now()

	req, err := decodeRequest(msg)
	if err != nil {
		a.observer.ObserveResponse("", cbus.OutcomeFailed, time.Since(start))
		return err
	}

	h, ok := a.registry.Lookup(req.ID)
	if !ok {
		// requester observes this as a timeout
		a.logger.DebugContext(ctx, "no placeholder handler", "id", req.ID, "requestId", req.RequestID)
		a.observer.ObserveResponse(req.ID, cbus.OutcomeUnhandled, time.Since(start))

		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("placeholder %q: panic: %v: %w", req.ID, r, berr.ErrHandlerFailed)
		}

		outcome := cbus.OutcomeResponded
		if err != nil {
			outcome = cbus.OutcomeFailed
		}

		a.observer.ObserveResponse(req.ID, outcome, time.Since(start))
	}()

	result, err := h(ctx, req.Params)
	if err != nil {
		return fmt.Errorf("placeholder %q: %w", req.ID, errors.Join(berr.ErrHandlerFailed, err))
	}

	body, err := encodeResponse(result)
	if err != nil {
		return err
	}

	return a.bus.SendEvent(ctx, ResponseChannel(a.namespace, req.RequestID), body)
}
