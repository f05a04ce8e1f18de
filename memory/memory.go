package memory

import (
	"context"
	"log/slog"

	"github.com/next-trace/scg-placeholder-bus/adapters/inmemory"
	"github.com/next-trace/scg-placeholder-bus/placeholder"
)

// New constructs a started placeholder API backed by the in-memory bus and
// returns it along with a cleanup function that closes the API and the bus.
func New(logger *slog.Logger, opts ...placeholder.Option) (*placeholder.API, func(), error) {
	b := inmemory.New()
	api := placeholder.New(b, logger, opts...)

	if err := api.Start(context.Background()); err != nil {
		_ = b.Close()
		return nil, nil, err
	}

	cleanup := func() {
		_ = api.Close()
		_ = b.Close()
	}

	return api, cleanup, nil
}
