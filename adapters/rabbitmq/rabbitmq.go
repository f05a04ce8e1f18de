package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	cbus "github.com/next-trace/scg-placeholder-bus/contract/bus"
	berr "github.com/next-trace/scg-placeholder-bus/contract/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange placeholder events are routed through.
const DefaultExchange = "placeholder"

const (
	headerChannel = "x-channel"
	headerSource  = "x-source"
)

type PubMsg struct {
	Exchange   string
	RoutingKey string
	Body       []byte
	Headers    map[string]string
}

type Publisher interface {
	Publish(ctx context.Context, m PubMsg) error
}

// Delivery is a consumed message.
type Delivery struct {
	RoutingKey string
	Body       []byte
	Headers    map[string]string
}

// Consumer binds a private queue to exchange with bindingKeys and feeds every
// delivery to deliver until the returned cancel func is called.
type Consumer interface {
	Consume(ctx context.Context, exchange string, bindingKeys []string, deliver func(Delivery)) (func() error, error)
}

type Adapter struct {
	Publisher  Publisher
	Consumer   Consumer
	Exchange   string                // DefaultExchange when empty
	Source     cbus.Source           // origin stamped on outgoing events, SourceServer when empty
	Propagator cbus.HeaderPropagator // optional, for context propagation into headers
}

var _ cbus.EventBus = (*Adapter)(nil)

func New(p Publisher, c Consumer) *Adapter { return &Adapter{Publisher: p, Consumer: c} }

// NewWithPropagator allows configuring a HeaderPropagator for context propagation.
func NewWithPropagator(p Publisher, c Consumer, hp cbus.HeaderPropagator) *Adapter {
	return &Adapter{Publisher: p, Consumer: c, Propagator: hp}
}

func (a *Adapter) SendEvent(ctx context.Context, id, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Publisher == nil {
		return fmt.Errorf("rabbitmq send: %w", berr.ErrPublishFailed)
	}

	hdrs := map[string]string{headerChannel: id, headerSource: string(a.source())}
	if a.Propagator != nil {
		a.Propagator.Inject(ctx, hdrs)
	}

	msg := PubMsg{
		Exchange:   a.exchange(),
		RoutingKey: RoutingKeyFor(id),
		Body:       []byte(message),
		Headers:    hdrs,
	}
	if err := a.Publisher.Publish(ctx, msg); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("rabbitmq send %s: %w", id, errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}

func (a *Adapter) Subscribe(cb cbus.Callback, filter cbus.Filter) (cbus.Subscription, error) {
	if a.Consumer == nil {
		return nil, fmt.Errorf("rabbitmq subscribe: %w", berr.ErrSubscribeFailed)
	}

	if cb == nil {
		return nil, fmt.Errorf("rabbitmq subscribe: nil callback: %w", berr.ErrSubscribeFailed)
	}

	cancel, err := a.Consumer.Consume(context.Background(), a.exchange(), bindingKeysFor(filter), func(d Delivery) {
		ev := eventFrom(d)
		if filter.Match(ev.ID) {
			cb(context.Background(), ev)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("rabbitmq subscribe: %w", errors.Join(berr.ErrSubscribeFailed, err))
	}

	return cbus.SubscriptionFunc(sync.OnceValue(cancel)), nil
}

// WaitConnected blocks until the consumer has a live broker connection or ctx
// ends. Consumers without a connection lifecycle are always ready.
func (a *Adapter) WaitConnected(ctx context.Context) error {
	r, ok := a.Consumer.(interface{ waitReady(context.Context) error })
	if !ok {
		return nil
	}

	return r.waitReady(ctx)
}

func (a *Adapter) exchange() string {
	if a.Exchange == "" {
		return DefaultExchange
	}

	return a.Exchange
}

func (a *Adapter) source() cbus.Source {
	if a.Source == "" {
		return cbus.SourceServer
	}

	return a.Source
}

var routingReplacer = strings.NewReplacer(":", ".", "*", "_", "#", "_")

// RoutingKeyFor maps a channel name onto a topic routing key.
func RoutingKeyFor(channel string) string { return routingReplacer.Replace(channel) }

func bindingKeysFor(f cbus.Filter) []string {
	if len(f.Namespaces) == 0 {
		return []string{"#"}
	}

	keys := make([]string, 0, len(f.Namespaces))
	for _, ns := range f.Namespaces {
		keys = append(keys, RoutingKeyFor(ns)+".#")
	}

	return keys
}

func eventFrom(d Delivery) cbus.Event {
	id := d.Headers[headerChannel]
	if id == "" {
		id = strings.ReplaceAll(d.RoutingKey, ".", ":")
	}

	return cbus.Event{ID: id, Message: string(d.Body), Source: cbus.Source(d.Headers[headerSource])}
}

func toTable(headers map[string]string) amqp.Table {
	if len(headers) == 0 {
		return nil
	}

	t := amqp.Table{}
	for k, v := range headers {
		t[k] = v
	}

	return t
}

func fromTable(t amqp.Table) map[string]string {
	h := make(map[string]string, len(t))
	for k, v := range t {
		if s, ok := v.(string); ok {
			h[k] = s
		} else {
			h[k] = fmt.Sprint(v)
		}
	}

	return h
}

// consumeOn declares an exclusive auto-delete queue on ch, binds it and starts
// a consumer. The returned channel closes when the consumer or ch goes away.
func consumeOn(ch *amqp.Channel, exchange string, keys []string) (string, <-chan amqp.Delivery, error) {
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return "", nil, err
	}

	for _, k := range keys {
		if err := ch.QueueBind(q.Name, k, exchange, false, nil); err != nil {
			return "", nil, err
		}
	}

	msgs, err := ch.Consume(q.Name, q.Name, true, true, false, false, nil)
	if err != nil {
		return "", nil, err
	}

	return q.Name, msgs, nil
}

type amqpChannelBus struct{ ch *amqp.Channel }

func (p amqpChannelBus) Publish(ctx context.Context, m PubMsg) error {
	return p.ch.PublishWithContext(
		ctx,
		m.Exchange,
		m.RoutingKey,
		false,
		false,
		amqp.Publishing{
			Headers:     toTable(m.Headers),
			Body:        m.Body,
			ContentType: "application/json",
		},
	)
}

func (p amqpChannelBus) Consume(
	_ context.Context,
	exchange string,
	keys []string,
	deliver func(Delivery),
) (func() error, error) {
	tag, msgs, err := consumeOn(p.ch, exchange, keys)
	if err != nil {
		return nil, err
	}

	go func() {
		for d := range msgs {
			deliver(Delivery{RoutingKey: d.RoutingKey, Body: d.Body, Headers: fromTable(d.Headers)})
		}
	}()

	return func() error { return p.ch.Cancel(tag, false) }, nil
}

// NewWithAMQPChannel uses a caller-owned channel for both publishing and
// consuming. The exchange must already exist.
func NewWithAMQPChannel(ch *amqp.Channel) *Adapter {
	b := amqpChannelBus{ch: ch}
	return &Adapter{Publisher: b, Consumer: b}
}
