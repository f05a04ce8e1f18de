package bus

import "context"

// Callback receives events from a subscription. Implementations must not block
// for long; the bus may deliver from a shared goroutine.
type Callback func(ctx context.Context, ev Event)

// Subscription is the handle returned by Subscribe. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe() error
}

// EventBus is the host-provided publish/subscribe primitive the placeholder
// protocol runs on. Delivery is best-effort and fire-and-forget.
//
// Library users provide an implementation backed by their runtime or broker
// (in-memory, NATS, RabbitMQ, Kafka, ...).
type EventBus interface {
	Subscribe(cb Callback, filter Filter) (Subscription, error)
	SendEvent(ctx context.Context, id, message string) error
}

// SubscriptionFunc adapts a plain function to Subscription.
type SubscriptionFunc func() error

func (f SubscriptionFunc) Unsubscribe() error { return f() }
