package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	cbus "github.com/next-trace/scg-placeholder-bus/contract/bus"
	berr "github.com/next-trace/scg-placeholder-bus/contract/errors"
)

const (
	topicPrefix   = "placeholder."
	headerChannel = "x-channel"
	headerSource  = "x-source"
)

// Record is a consumed Kafka record reduced to what the event bus needs.
type Record struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Writer is a minimal Kafka-like writer interface.
// Users can adapt segmentio/kafka-go or any other client to this.
type Writer interface {
	Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Reader starts consuming topics from their current end and calls deliver for every record.
// The returned func stops consumption.
type Reader interface {
	Consume(topics []string, deliver func(Record)) (func() error, error)
}

// Adapter implements cbus.EventBus using an injected Writer and Reader.
// Every namespace maps to one topic; the record key carries the channel.
type Adapter struct {
	Writer     Writer
	Reader     Reader
	Source     cbus.Source
	Propagator cbus.HeaderPropagator
}

var _ cbus.EventBus = (*Adapter)(nil)

// New creates a new Kafka adapter instance with the provided writer and reader.
func New(w Writer, r Reader) *Adapter { return &Adapter{Writer: w, Reader: r} }

func (a *Adapter) SendEvent(ctx context.Context, id, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Writer == nil {
		return fmt.Errorf("kafka send: %w", berr.ErrPublishFailed)
	}

	headers := map[string]string{headerChannel: id, headerSource: string(a.source())}
	if a.Propagator != nil {
		a.Propagator.Inject(ctx, headers)
	}

	topic := TopicFor(cbus.NamespaceOf(id))

	if err := a.Writer.Write(ctx, topic, []byte(id), []byte(message), headers); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("kafka send write: %w", errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}

// Subscribe consumes one topic per filter namespace. Kafka has no wildcard
// subscription here, so the filter must name at least one namespace.
func (a *Adapter) Subscribe(cb cbus.Callback, filter cbus.Filter) (cbus.Subscription, error) {
	if a.Reader == nil {
		return nil, fmt.Errorf("kafka subscribe: %w", berr.ErrSubscribeFailed)
	}

	if cb == nil || len(filter.Namespaces) == 0 {
		return nil, fmt.Errorf("kafka subscribe: callback and namespace required: %w", berr.ErrSubscribeFailed)
	}

	topics := make([]string, 0, len(filter.Namespaces))
	for _, ns := range filter.Namespaces {
		topics = append(topics, TopicFor(ns))
	}

	stop, err := a.Reader.Consume(topics, func(r Record) {
		ev := eventFrom(r)
		if filter.Match(ev.ID) {
			cb(context.Background(), ev)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("kafka subscribe consume: %w", errors.Join(berr.ErrSubscribeFailed, err))
	}

	return cbus.SubscriptionFunc(sync.OnceValue(stop)), nil
}

func (a *Adapter) source() cbus.Source {
	if a.Source == "" {
		return cbus.SourceServer
	}

	return a.Source
}

// helpers

var topicReplacer = strings.NewReplacer(":", ".", " ", "_", "/", "_")

// TopicFor returns the topic carrying every channel of a namespace.
func TopicFor(namespace string) string { return topicPrefix + topicReplacer.Replace(namespace) }

func eventFrom(r Record) cbus.Event {
	id := r.Headers[headerChannel]
	if id == "" {
		id = string(r.Key)
	}

	return cbus.Event{ID: id, Message: string(r.Value), Source: cbus.Source(r.Headers[headerSource])}
}
