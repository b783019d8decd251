package resilience

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newGroup() *FallbackGroup[string] {
	fg := NewFallbackGroup("realtime", "realtime", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	fg.AddFallback("llm", "llm")
	return fg
}

func TestFallbackGroup_PrimarySuccess(t *testing.T) {
	fg := newGroup()

	var called string
	err := fg.Execute(context.Background(), func(_ context.Context, v string) error {
		called = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called != "realtime" {
		t.Fatalf("called = %q, want realtime", called)
	}
}

func TestFallbackGroup_Failover(t *testing.T) {
	fg := newGroup()

	result, name, err := ExecuteWithResult(context.Background(), fg, func(_ context.Context, v string) (string, error) {
		if v == "realtime" {
			return "", errTest
		}
		return "from-" + v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "from-llm" || name != "llm" {
		t.Fatalf("got (%q, %q), want (from-llm, llm)", result, name)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	fg := newGroup()

	_, _, err := ExecuteWithResult(context.Background(), fg, func(_ context.Context, v string) (int, error) {
		return 0, errors.New(v + " down")
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	for _, want := range []string{"realtime: realtime down", "llm: llm down"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestFallbackGroup_SkipsOpenCircuit(t *testing.T) {
	fg := newGroup()
	ctx := context.Background()

	primaryCalls := 0
	call := func(_ context.Context, v string) error {
		if v == "realtime" {
			primaryCalls++
			return errTest
		}
		return nil
	}
	for range 2 {
		_ = fg.Execute(ctx, call)
	}
	if got := fg.States()["realtime"]; got != StateOpen {
		t.Fatalf("realtime state = %v, want open", got)
	}

	_ = fg.Execute(ctx, call)
	if primaryCalls != 2 {
		t.Errorf("primary called %d times, want 2 (open circuit must be skipped)", primaryCalls)
	}
}

func TestFallbackGroup_StopsOnCancel(t *testing.T) {
	fg := newGroup()
	ctx, cancel := context.WithCancel(context.Background())

	var tried []string
	err := fg.Execute(ctx, func(_ context.Context, v string) error {
		tried = append(tried, v)
		cancel()
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(tried) != 1 {
		t.Errorf("tried %v, want only the primary", tried)
	}
}

func TestFallbackGroup_Names(t *testing.T) {
	fg := newGroup()
	names := fg.Names()
	if len(names) != 2 || names[0] != "realtime" || names[1] != "llm" {
		t.Errorf("Names() = %v", names)
	}
}
