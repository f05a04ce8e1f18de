package kafka

import (
	"context"
	"sync"
)

// poller is one consumer client. Poll blocks for the next batch and reports
// false once the client is closed or ctx ends.
type poller interface {
	Poll(ctx context.Context) ([]Record, bool)
	Close()
}

// runPoller delivers records from p on a single goroutine and closes p when
// that goroutine exits. The returned stop func never waits for the goroutine,
// so deliver may call it; no record is delivered after stop returns to a
// caller on the poll goroutine.
func runPoller(p poller, deliver func(Record)) func() error {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		defer p.Close()

		for {
			recs, ok := p.Poll(ctx)
			if !ok {
				return
			}

			for _, r := range recs {
				if ctx.Err() != nil {
					return
				}

				deliver(r)
			}
		}
	}()

	var once sync.Once

	return func() error {
		once.Do(cancel)
		return nil
	}
}
