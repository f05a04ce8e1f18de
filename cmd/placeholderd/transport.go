package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/next-trace/scg-placeholder-bus/adapters/inmemory"
	"github.com/next-trace/scg-placeholder-bus/adapters/nats"
	"github.com/next-trace/scg-placeholder-bus/adapters/rabbitmq"
	"github.com/next-trace/scg-placeholder-bus/config"
	cbus "github.com/next-trace/scg-placeholder-bus/contract/bus"
	berr "github.com/next-trace/scg-placeholder-bus/contract/errors"
)

const rabbitStartupWait = 10 * time.Second

// openBus connects the configured transport. The cleanup is never nil on success.
func (a *app) openBus() (cbus.EventBus, func(), error) {
	switch a.cfg.Transport {
	case config.TransportMemory:
		b := inmemory.New()
		return b, func() { _ = b.Close() }, nil
	case config.TransportNATS:
		return nats.NewWithNATS(nats.Config{URL: a.cfg.NATS.URL, Name: a.cfg.NATS.Name})
	case config.TransportRabbitMQ:
		timeout, err := a.cfg.RabbitMQ.Timeout()
		if err != nil {
			return nil, nil, err
		}

		ad, cleanup, err := rabbitmq.NewWithAMQPConn(rabbitmq.Config{
			URL:         a.cfg.RabbitMQ.URL,
			ConnTimeout: timeout,
			Exchange:    a.cfg.RabbitMQ.Exchange,
			Logger:      a.logger,
		})
		if err != nil {
			return nil, nil, err
		}

		// subscriptions fail fast while disconnected, so wait for the first dial
		ctx, cancel := context.WithTimeout(context.Background(), max(timeout, rabbitStartupWait))
		defer cancel()

		if err := ad.WaitConnected(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("rabbitmq connect: %w", errors.Join(berr.ErrNotConnected, err))
		}

		return ad, cleanup, nil
	case config.TransportKafka:
		return openKafka(a.cfg.Kafka)
	default:
		return nil, nil, fmt.Errorf("transport %q: %w", a.cfg.Transport, berr.ErrInvalidConfig)
	}
}
