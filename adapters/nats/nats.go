package nats

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
	headerChannel = "x-channel"
	headerSource  = "x-source"
)

// Client is a minimal NATS-like interface decoupled from any concrete library.
// Users can provide a wrapper around their NATS connection to satisfy this.
type Client interface {
	// Publish publishes a message to a subject with optional headers.
	Publish(subject string, data []byte, headers map[string]string) error
	// Subscribe registers handler on subject (wildcards allowed) and returns an unsubscribe func.
	Subscribe(subject string, handler func(subject string, data []byte, headers map[string]string)) (func() error, error)
}

// Adapter implements cbus.EventBus using an injected NATS-like Client.
// Channel names travel in headers so the mapping to subjects may be lossy.
type Adapter struct {
	Client     Client
	Source     cbus.Source           // origin stamped on outgoing events, SourceServer when empty
	Propagator cbus.HeaderPropagator // optional, for context propagation into headers
}

// Ensure Adapter implements the contract.
var _ cbus.EventBus = (*Adapter)(nil)

// New creates a new NATS adapter instance with the provided client.
func New(c Client) *Adapter { return &Adapter{Client: c} }

func (a *Adapter) SendEvent(ctx context.Context, id, message string) error {
	if err := a.ready(ctx, berr.ErrPublishFailed, "send"); err != nil {
		return err
	}

	headers := map[string]string{headerChannel: id, headerSource: string(a.source())}
	if a.Propagator != nil {
		a.Propagator.Inject(ctx, headers)
	}

	if err := a.Client.Publish(SubjectFor(id), []byte(message), headers); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("nats send %s: %w", id, errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}

func (a *Adapter) Subscribe(cb cbus.Callback, filter cbus.Filter) (cbus.Subscription, error) {
	if err := a.ready(context.Background(), berr.ErrSubscribeFailed, "subscribe"); err != nil {
		return nil, err
	}

	if cb == nil {
		return nil, fmt.Errorf("nats subscribe: nil callback: %w", berr.ErrSubscribeFailed)
	}

	deliver := func(subject string, data []byte, headers map[string]string) {
		ev := eventFrom(subject, data, headers)
		if filter.Match(ev.ID) {
			cb(context.Background(), ev)
		}
	}

	var unsubs []func() error

	for _, subj := range subjectsFor(filter) {
		unsub, err := a.Client.Subscribe(subj, deliver)
		if err != nil {
			for _, u := range unsubs {
				_ = u()
			}

			return nil, fmt.Errorf("nats subscribe %s: %w", subj, errors.Join(berr.ErrSubscribeFailed, err))
		}

		unsubs = append(unsubs, unsub)
	}

	var once sync.Once

	return cbus.SubscriptionFunc(func() error {
		var errs []error

		once.Do(func() {
			for _, u := range unsubs {
				if err := u(); err != nil {
					errs = append(errs, err)
				}
			}
		})

		return errors.Join(errs...)
	}), nil
}

func (a *Adapter) ready(ctx context.Context, base error, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Client == nil {
		return fmt.Errorf("nats %s: %w", label, base)
	}

	return nil
}

func (a *Adapter) source() cbus.Source {
	if a.Source == "" {
		return cbus.SourceServer
	}

	return a.Source
}

// helpers

var tokenReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_", "\t", "_")

// SubjectFor maps a channel name onto a NATS subject: "ns:response:id" -> "ns.response.id".
// Every ':'-separated part becomes one non-empty token, so ids may be empty or
// contain dots.
func SubjectFor(channel string) string {
	parts := strings.Split(channel, ":")
	for i, p := range parts {
		if p == "" {
			parts[i] = "_"
			continue
		}

		parts[i] = tokenReplacer.Replace(p)
	}

	return strings.Join(parts, ".")
}

func subjectsFor(f cbus.Filter) []string {
	if len(f.Namespaces) == 0 {
		return []string{">"}
	}

	out := make([]string, 0, len(f.Namespaces))
	for _, ns := range f.Namespaces {
		out = append(out, SubjectFor(ns)+".>")
	}

	return out
}

func eventFrom(subject string, data []byte, headers map[string]string) cbus.Event {
	id := headers[headerChannel]
	if id == "" {
		id = strings.ReplaceAll(subject, ".", ":")
	}

	return cbus.Event{ID: id, Message: string(data), Source: cbus.Source(headers[headerSource])}
}
