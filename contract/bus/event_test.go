package bus_test

import (
	"testing"
	"time"

	cbus "github.com/next-trace/scg-placeholder-bus/contract/bus"
)

func TestFilter_Match(t *testing.T) {
	f := cbus.Filter{Namespaces: []string{"placeholder_api"}}

	cases := map[string]bool{
		"placeholder_api:request":          true,
		"placeholder_api:response:foo:abc": true,
		"other:request":                    false,
		"placeholder_api_v2:request":       false,
		"placeholder_api":                  true,
		"":                                 false,
	}

	for id, want := range cases {
		if got := f.Match(id); got != want {
			t.Fatalf("Match(%q)=%v want %v", id, got, want)
		}
	}

	if !(cbus.Filter{}).Match("anything:goes") {
		t.Fatalf("empty filter must match everything")
	}
}

func TestEvent_Namespace(t *testing.T) {
	ev := cbus.Event{ID: "ns:response:id:tok"}
	if ev.Namespace() != "ns" {
		t.Fatalf("namespace=%q", ev.Namespace())
	}
}

func TestTicks(t *testing.T) {
	if cbus.Ticks(cbus.TicksPerSecond) != time.Second {
		t.Fatalf("20 ticks should be one second, got %v", cbus.Ticks(cbus.TicksPerSecond))
	}

	if cbus.Ticks(1) != 50*time.Millisecond {
		t.Fatalf("tick=%v", cbus.Ticks(1))
	}
}

func TestSystemScheduler_Fires(t *testing.T) {
	done := make(chan struct{})
	cbus.SystemScheduler{}.RunAfterDelay(func() { close(done) }, time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timer did not fire")
	}
}

func TestSystemScheduler_Stop(t *testing.T) {
	fired := make(chan struct{}, 1)
	tm := cbus.SystemScheduler{}.RunAfterDelay(func() { fired <- struct{}{} }, 50*time.Millisecond)

	if !tm.Stop() {
		t.Fatalf("expected stop to succeed")
	}

	select {
	case <-fired:
		t.Fatalf("stopped timer fired")
	case <-time.After(100 * time.Millisecond):
	}
}
