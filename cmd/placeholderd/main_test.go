package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/next-trace/scg-placeholder-bus/config"
	berr "github.com/next-trace/scg-placeholder-bus/contract/errors"
	"github.com/next-trace/scg-placeholder-bus/placeholder"
)

func TestParseParams(t *testing.T) {
	p, err := parseParams([]string{"world=overworld", "radius=16", "raw={bad", "flag=true"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if s, _ := p.String("world"); s != "overworld" {
		t.Fatalf("world=%q", s)
	}

	if n, _ := p.Number("radius"); n != 16 {
		t.Fatalf("radius=%v", n)
	}

	if s, _ := p.String("raw"); s != "{bad" {
		t.Fatalf("raw=%q", s)
	}

	if b, ok := p["flag"].AsBool(); !ok || !b {
		t.Fatalf("flag=%v", p["flag"])
	}

	if _, err := parseParams([]string{"novalue"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDemoProviders(t *testing.T) {
	r := placeholder.NewRegistry()
	started := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time { return started.Add(90 * time.Second) }

	registerDemo(r, started, now)

	call := func(id string, p placeholder.Params) (string, error) {
		h, ok := r.Lookup(id)
		if !ok {
			t.Fatalf("missing %s", id)
		}

		return h(context.Background(), p)
	}

	if got, _ := call("ping", nil); got != "pong" {
		t.Fatalf("ping=%q", got)
	}

	if got, _ := call("uptime", nil); got != "90" {
		t.Fatalf("uptime=%q", got)
	}

	if got, _ := call("time", placeholder.Params{"layout": placeholder.String("15:04:05")}); got != "00:01:30" {
		t.Fatalf("time=%q", got)
	}

	if got, _ := call("sum", placeholder.Params{"a": placeholder.Int(2), "b": placeholder.Number(0.5)}); got != "2.5" {
		t.Fatalf("sum=%q", got)
	}

	if _, err := call("sum", placeholder.Params{"a": placeholder.String("x")}); err == nil {
		t.Fatalf("expected sum error")
	}

	if ids := strings.Join(r.IDs(), ","); ids != "echo,ping,sum,time,uptime" {
		t.Fatalf("ids=%s", ids)
	}
}

func TestRequestCmd_MemoryTransportTimesOut(t *testing.T) {
	t.Setenv(config.EnvPath, "")

	var out, errOut bytes.Buffer

	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"request", "ping", "--transport", "memory", "--ticks", "1"})

	if err := root.ExecuteContext(t.Context()); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if got := strings.TrimSpace(out.String()); got != placeholder.TimeoutSentinel {
		t.Fatalf("got %q", got)
	}
}

func TestRootCmd_InvalidTransport(t *testing.T) {
	t.Setenv(config.EnvPath, "")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"request", "ping", "--transport", "pigeon"})

	if err := root.ExecuteContext(t.Context()); !errors.Is(err, berr.ErrInvalidConfig) {
		t.Fatalf("want ErrInvalidConfig, got %v", err)
	}
}

func TestServe_AnswersOverSharedMemoryBus(t *testing.T) {
	a := &app{cfg: config.Default(), logger: config.Default().Log.NewLogger(&bytes.Buffer{})}

	b, cleanup, err := a.openBus()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer cleanup()

	responder := placeholder.New(b, a.logger, a.apiOptions()...)
	registerDemo(responder.Registry(), time.Now(), time.Now)

	if err := responder.Start(t.Context()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer responder.Close()

	requester := placeholder.New(b, a.logger, a.apiOptions()...)

	got := requester.Request(t.Context(), "echo", placeholder.Params{"k": placeholder.String("v")}, 0)
	if got != "k=v" {
		t.Fatalf("echo=%q", got)
	}
}
