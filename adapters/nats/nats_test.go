package nats_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/next-trace/scg-placeholder-bus/adapters/nats"
	cbus "github.com/next-trace/scg-placeholder-bus/contract/bus"
	berr "github.com/next-trace/scg-placeholder-bus/contract/errors"
	"github.com/next-trace/scg-placeholder-bus/placeholder"
)

type published struct {
	subject string
	data    []byte
	headers map[string]string
}

type handlerFn = func(subject string, data []byte, headers map[string]string)

// loopClient records publishes and loops them back to matching subscriptions.
type loopClient struct {
	mu       sync.Mutex
	calls    []published
	subs     map[int]sub
	next     int
	unsubbed int
	err      error
	subErr   error
}

type sub struct {
	subject string
	h       handlerFn
}

func newLoopClient() *loopClient { return &loopClient{subs: map[int]sub{}} }

func (c *loopClient) Publish(subject string, data []byte, headers map[string]string) error {
	for _, tok := range strings.Split(subject, ".") {
		if tok == "" {
			return errors.New("nats: invalid subject")
		}
	}

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return c.err
	}

	c.calls = append(c.calls, published{subject, data, headers})

	var targets []handlerFn
	for _, s := range c.subs {
		if subjectMatch(s.subject, subject) {
			targets = append(targets, s.h)
		}
	}
	c.mu.Unlock()

	go func() {
		for _, h := range targets {
			h(subject, data, headers)
		}
	}()

	return nil
}

func (c *loopClient) Subscribe(subject string, h handlerFn) (func() error, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subErr != nil && len(c.subs) > 0 {
		return nil, c.subErr
	}

	id := c.next
	c.next++
	c.subs[id] = sub{subject, h}

	return func() error {
		c.mu.Lock()
		delete(c.subs, id)
		c.unsubbed++
		c.mu.Unlock()

		return nil
	}, nil
}

func (c *loopClient) subjects() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	for _, s := range c.subs {
		out = append(out, s.subject)
	}

	return out
}

// subjectMatch implements NATS '*' and '>' wildcards.
func subjectMatch(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")

	for i, p := range pt {
		if p == ">" {
			return len(st) > i
		}

		if i >= len(st) || (p != "*" && p != st[i]) {
			return false
		}
	}

	return len(pt) == len(st)
}

type stubPropagator struct{}

func (stubPropagator) Inject(_ context.Context, h map[string]string) { h["traceparent"] = "00-abc" }

func TestNATS_SendEvent_SubjectAndHeaders(t *testing.T) {
	fc := newLoopClient()
	ad := nats.New(fc)
	ad.Propagator = stubPropagator{}

	if err := ad.SendEvent(t.Context(), "placeholder_api:response:ping:abc", `{"result":"pong"}`); err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(fc.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(fc.calls))
	}

	c := fc.calls[0]
	if c.subject != "placeholder_api.response.ping.abc" {
		t.Fatalf("subject mismatch: %s", c.subject)
	}

	if c.headers["x-channel"] != "placeholder_api:response:ping:abc" || c.headers["x-source"] != "Server" {
		t.Fatalf("headers missing or wrong: %+v", c.headers)
	}

	if c.headers["traceparent"] != "00-abc" {
		t.Fatalf("propagator not applied: %+v", c.headers)
	}
}

func TestNATS_SubjectFor_ReplacesWildcards(t *testing.T) {
	if got := nats.SubjectFor("ns:request:a b*c>d"); got != "ns.request.a_b_c_d" {
		t.Fatalf("subject=%s", got)
	}
}

func TestNATS_SubjectFor_NoEmptyTokens(t *testing.T) {
	cases := map[string]string{
		"ns:response::uuid":       "ns.response._.uuid",
		"ns:response:player.:u":   "ns.response.player_.u",
		"ns:response:.lead:u":     "ns.response._lead.u",
		"ns:response:a..b:u":      "ns.response.a__b.u",
		"ns:response:stats.kills": "ns.response.stats_kills",
	}

	for in, want := range cases {
		got := nats.SubjectFor(in)
		if got != want {
			t.Fatalf("SubjectFor(%q)=%q want %q", in, got, want)
		}

		for _, tok := range strings.Split(got, ".") {
			if tok == "" {
				t.Fatalf("empty token in %q", got)
			}
		}
	}
}

func TestNATS_EmptyAndDottedIDsRoundTrip(t *testing.T) {
	lc := newLoopClient()
	ad := nats.New(lc)

	api := placeholder.New(ad, nil)
	api.ListenFunc("", func(placeholder.Params) string { return "blank" })
	api.ListenFunc("stats.kills.", func(placeholder.Params) string { return "7" })

	if err := api.Start(t.Context()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer api.Close()

	if got := api.Request(t.Context(), "", nil, time.Second); got != "blank" {
		t.Fatalf("empty id: got %q", got)
	}

	if got := api.Request(t.Context(), "stats.kills.", nil, time.Second); got != "7" {
		t.Fatalf("dotted id: got %q", got)
	}
}

func TestNATS_Subscribe_FilterAndDelivery(t *testing.T) {
	fc := newLoopClient()
	ad := nats.New(fc)

	got := make(chan cbus.Event, 2)

	s, err := ad.Subscribe(func(_ context.Context, ev cbus.Event) { got <- ev }, cbus.Filter{Namespaces: []string{"ns"}})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if subj := fc.subjects(); len(subj) != 1 || subj[0] != "ns.>" {
		t.Fatalf("subjects=%v", subj)
	}

	ad.Source = cbus.SourceEntity
	_ = ad.SendEvent(t.Context(), "ns:request", "body")

	select {
	case ev := <-got:
		if ev.ID != "ns:request" || ev.Message != "body" || ev.Source != cbus.SourceEntity {
			t.Fatalf("event=%+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("no delivery")
	}

	if err := s.Unsubscribe(); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}

	_ = s.Unsubscribe()

	if fc.unsubbed != 1 {
		t.Fatalf("unsubscribe must run once, ran %d", fc.unsubbed)
	}
}

func TestNATS_Subscribe_FallsBackToSubject(t *testing.T) {
	fc := newLoopClient()
	ad := nats.New(fc)

	got := make(chan cbus.Event, 1)
	_, _ = ad.Subscribe(func(_ context.Context, ev cbus.Event) { got <- ev }, cbus.Filter{})

	if subj := fc.subjects(); len(subj) != 1 || subj[0] != ">" {
		t.Fatalf("subjects=%v", subj)
	}

	// a foreign publisher without our headers
	_ = fc.Publish("ns.request", []byte("raw"), nil)

	select {
	case ev := <-got:
		if ev.ID != "ns:request" || ev.Source != "" {
			t.Fatalf("event=%+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("no delivery")
	}
}

func TestNATS_SubscribeFailureRollsBack(t *testing.T) {
	fc := newLoopClient()
	fc.subErr = errors.New("denied")
	ad := nats.New(fc)

	_, err := ad.Subscribe(func(context.Context, cbus.Event) {}, cbus.Filter{Namespaces: []string{"a", "b"}})
	if !errors.Is(err, berr.ErrSubscribeFailed) {
		t.Fatalf("want ErrSubscribeFailed, got %v", err)
	}

	if len(fc.subjects()) != 0 || fc.unsubbed != 1 {
		t.Fatalf("partial subscription left behind: %v", fc.subjects())
	}
}

func TestNATS_NilClientError(t *testing.T) {
	ad := nats.New(nil)

	if err := ad.SendEvent(t.Context(), "ns:x", ""); !errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("expected ErrPublishFailed for nil client, got %v", err)
	}

	if _, err := ad.Subscribe(func(context.Context, cbus.Event) {}, cbus.Filter{}); !errors.Is(err, berr.ErrSubscribeFailed) {
		t.Fatalf("expected ErrSubscribeFailed for nil client, got %v", err)
	}
}

func TestNATS_Publish_ErrorWrapping_And_ContextCancel(t *testing.T) {
	fc := newLoopClient()
	fc.err = errors.New("boom")
	ad := nats.New(fc)

	if err := ad.SendEvent(t.Context(), "ns:x", ""); !errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("expected wrapped error, got %v", err)
	}

	fc2 := newLoopClient()
	fc2.err = context.Canceled
	ad2 := nats.New(fc2)

	err := ad2.SendEvent(t.Context(), "ns:x", "")
	if !errors.Is(err, context.Canceled) || errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("want bare context.Canceled, got %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if err := nats.New(newLoopClient()).SendEvent(ctx, "ns:x", ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestNATS_PlaceholderRoundTrip(t *testing.T) {
	ad := nats.New(newLoopClient())

	api := placeholder.New(ad, nil)
	api.ListenFunc("ping", func(placeholder.Params) string { return "pong" })

	if err := api.Start(t.Context()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer api.Close()

	if got := api.Request(t.Context(), "ping", nil, time.Second); got != "pong" {
		t.Fatalf("got %q", got)
	}
}
