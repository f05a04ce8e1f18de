//go:build franz

package main

import (
	"github.com/next-trace/scg-placeholder-bus/adapters/kafka"
	"github.com/next-trace/scg-placeholder-bus/config"
	cbus "github.com/next-trace/scg-placeholder-bus/contract/bus"
)

func openKafka(c config.Kafka) (cbus.EventBus, func(), error) {
	return kafka.NewWithKgo(kafka.Config{Brokers: c.Brokers, ClientID: c.ClientID, Idempotent: true})
}
