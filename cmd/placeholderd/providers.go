package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/next-trace/scg-placeholder-bus/placeholder"
)

// registerDemo installs the placeholders served by `placeholderd serve`.
func registerDemo(r *placeholder.Registry, started time.Time, now func() time.Time) {
	r.ListenFunc("ping", func(placeholder.Params) string { return "pong" })

	r.ListenFunc("echo", func(p placeholder.Params) string { return p.Format() })

	r.Listen("time", func(_ context.Context, p placeholder.Params) (string, error) {
		layout, ok := p.String("layout")
		if !ok || layout == "" {
			layout = time.RFC3339
		}

		return now().Format(layout), nil
	})

	r.ListenFunc("uptime", func(placeholder.Params) string {
		return strconv.FormatInt(int64(now().Sub(started)/time.Second), 10)
	})

	r.Listen("sum", func(_ context.Context, p placeholder.Params) (string, error) {
		var total float64

		for _, k := range p.Keys() {
			n, ok := p.Number(k)
			if !ok {
				return "", fmt.Errorf("param %s is not a number", k)
			}

			total += n
		}

		return strconv.FormatFloat(total, 'f', -1, 64), nil
	})
}
