//go:build !franz

package main

import (
	"fmt"

	"github.com/next-trace/scg-placeholder-bus/config"
	cbus "github.com/next-trace/scg-placeholder-bus/contract/bus"
	berr "github.com/next-trace/scg-placeholder-bus/contract/errors"
)

func openKafka(config.Kafka) (cbus.EventBus, func(), error) {
	return nil, nil, fmt.Errorf("kafka transport requires building with -tags franz: %w", berr.ErrNotConnected)
}
