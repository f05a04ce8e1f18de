package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	berr "github.com/next-trace/scg-placeholder-bus/contract/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Concrete AMQP connection-backed session with auto-reconnect. It serves both
// as Publisher and Consumer; consumers are re-established after a reconnect.

const exchangeKind = "topic"

type Config struct {
	URL         string
	ConnTimeout time.Duration
	Exchange    string
	Logger      *slog.Logger
}

type session struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	ready  chan struct{} // closed while a channel is available
	closed chan struct{}
	once   sync.Once
}

func newSession(cfg Config) (*session, func()) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}

	s := &session{
		cfg:    cfg,
		logger: logger,
		closed: make(chan struct{}),
		ready:  make(chan struct{}),
	}
	go s.run()
	cleanup := func() { s.close() }

	return s, cleanup
}

// current waits until a connection is up, the session closes or ctx ends.
func (s *session) current(ctx context.Context) (*amqp.Connection, *amqp.Channel, error) {
	for {
		s.mu.RLock()
		conn, ch, ready := s.conn, s.ch, s.ready
		s.mu.RUnlock()

		if ch != nil {
			return conn, ch, nil
		}

		select {
		case <-ready:
		case <-s.closed:
			return nil, nil, fmt.Errorf("rabbitmq session: %w", berr.ErrClosed)
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
}

// live returns the current connection without waiting. Callers get
// ErrNotConnected while the session is reconnecting.
func (s *session) live() (*amqp.Connection, *amqp.Channel, error) {
	select {
	case <-s.closed:
		return nil, nil, fmt.Errorf("rabbitmq session: %w", berr.ErrClosed)
	default:
	}

	s.mu.RLock()
	conn, ch := s.conn, s.ch
	s.mu.RUnlock()

	if ch == nil {
		return nil, nil, fmt.Errorf("rabbitmq session: %w", berr.ErrNotConnected)
	}

	return conn, ch, nil
}

func (s *session) waitReady(ctx context.Context) error {
	_, _, err := s.current(ctx)
	return err
}

// Publish fails fast while disconnected; events are fire-and-forget.
func (s *session) Publish(ctx context.Context, m PubMsg) error {
	_, ch, err := s.live()
	if err != nil {
		return err
	}

	return ch.PublishWithContext(
		ctx,
		m.Exchange,
		m.RoutingKey,
		false,
		false,
		amqp.Publishing{
			Headers:     toTable(m.Headers),
			ContentType: "application/json",
			Body:        m.Body,
		},
	)
}

type sessionSub struct {
	mu   sync.Mutex
	ch   *amqp.Channel
	done chan struct{}
	once sync.Once
}

func (ss *sessionSub) set(ch *amqp.Channel) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	select {
	case <-ss.done:
		return false
	default:
	}

	ss.ch = ch

	return true
}

func (ss *sessionSub) cancel() error {
	var err error

	ss.once.Do(func() {
		ss.mu.Lock()
		defer ss.mu.Unlock()

		close(ss.done)

		if ss.ch != nil {
			if cerr := ss.ch.Close(); cerr != nil && !errors.Is(cerr, amqp.ErrClosed) {
				err = cerr
			}

			ss.ch = nil
		}
	})

	return err
}

func (s *session) open(conn *amqp.Connection, exchange string, keys []string) (*amqp.Channel, <-chan amqp.Delivery, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, nil, err
	}

	_, msgs, err := consumeOn(ch, exchange, keys)
	if err != nil {
		_ = ch.Close()
		return nil, nil, err
	}

	return ch, msgs, nil
}

// Consume opens a dedicated channel per subscription. The first bind happens
// before Consume returns so no event published afterwards is missed. It fails
// with ErrNotConnected instead of waiting for a reconnect.
func (s *session) Consume(
	_ context.Context,
	exchange string,
	keys []string,
	deliver func(Delivery),
) (func() error, error) {
	conn, _, err := s.live()
	if err != nil {
		return nil, err
	}

	ch, msgs, err := s.open(conn, exchange, keys)
	if err != nil {
		return nil, err
	}

	ss := &sessionSub{ch: ch, done: make(chan struct{})}

	go s.pump(ss, exchange, keys, deliver, msgs)

	return ss.cancel, nil
}

// pump feeds deliveries until the subscription or the session ends, reopening
// the consumer whenever the underlying channel goes away.
func (s *session) pump(ss *sessionSub, exchange string, keys []string, deliver func(Delivery), msgs <-chan amqp.Delivery) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-ss.done:
		case <-s.closed:
		}
		cancel()
	}()

	for {
		for d := range msgs {
			deliver(Delivery{RoutingKey: d.RoutingKey, Body: d.Body, Headers: fromTable(d.Headers)})
		}

		for {
			if ctx.Err() != nil {
				return
			}

			ch, next, err := s.reopen(ctx, exchange, keys)
			if err == nil {
				if !ss.set(ch) {
					_ = ch.Close()
					return
				}

				msgs = next

				break
			}

			s.logger.Warn("rabbitmq resubscribe failed", "exchange", exchange, "err", err)

			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// reopen waits for a connection and opens a fresh consumer on it.
func (s *session) reopen(ctx context.Context, exchange string, keys []string) (*amqp.Channel, <-chan amqp.Delivery, error) {
	conn, _, err := s.current(ctx)
	if err != nil {
		return nil, nil, err
	}

	return s.open(conn, exchange, keys)
}

func (s *session) run() {
	backoff := time.Second
	const maxBackoff = 30 * time.Second
	// #nosec G404 -- non-crypto RNG is acceptable for backoff jitter
	rng := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // non-crypto RNG is acceptable for backoff jitter

	connect := func() (*amqp.Connection, *amqp.Channel, error) {
		conn, err := amqp.DialConfig(s.cfg.URL, amqp.Config{
			Locale:     "en_US",
			Properties: amqp.Table{"product": "scg-placeholder-bus"},
			Dial:       amqp.DefaultDial(s.cfg.ConnTimeout),
		})
		if err != nil {
			return nil, nil, err
		}

		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}

		if err := ch.ExchangeDeclare(s.cfg.Exchange, exchangeKind, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()

			return nil, nil, err
		}

		return conn, ch, nil
	}

	for {
		select {
		case <-s.closed:
			return
		default:
		}

		conn, ch, err := connect()
		if err != nil {
			s.logger.Warn("rabbitmq connect failed", "err", err, "retry_in", backoff)

			// exponential backoff with jitter
			jitter := time.Duration(rng.Int63n(int64(backoff / 2)))
			sleep := min(backoff+jitter/2, maxBackoff)

			t := time.NewTimer(sleep)
			select {
			case <-s.closed:
				t.Stop()
				return
			case <-t.C:
			}

			backoff = min(backoff*2, maxBackoff)

			continue
		}

		backoff = time.Second

		notify := conn.NotifyClose(make(chan *amqp.Error, 1))

		s.mu.Lock()
		s.conn = conn
		s.ch = ch
		close(s.ready)
		s.mu.Unlock()

		select {
		case <-s.closed:
			return
		case amqpErr := <-notify:
			s.logger.Warn("rabbitmq connection lost", "err", amqpErr)

			s.mu.Lock()
			s.conn, s.ch = nil, nil
			s.ready = make(chan struct{})
			s.mu.Unlock()

			_ = ch.Close()
			_ = conn.Close()
		}
	}
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.closed)

		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ch != nil {
			_ = s.ch.Close()
			s.ch = nil
		}

		if s.conn != nil {
			_ = s.conn.Close()
			s.conn = nil
		}
	})
}

// NewWithAMQPConn dials RabbitMQ with auto-reconnect, ensures the topic exchange,
// and returns an Adapter and cleanup.
func NewWithAMQPConn(cfg Config) (*Adapter, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("%w: rabbitmq url required", berr.ErrNotConnected)
	}

	s, cleanup := newSession(cfg)
	ad := New(s, s)
	ad.Exchange = s.cfg.Exchange

	return ad, cleanup, nil
}
