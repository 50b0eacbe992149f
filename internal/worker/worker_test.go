package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LiboWorks/turboyaml/internal/worker"
)

func TestNewLimiterSize(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{n: 0, want: worker.DefaultLimit},
		{n: -3, want: worker.DefaultLimit},
		{n: 1, want: 1},
		{n: 8, want: 8},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.n), func(t *testing.T) {
			if got := worker.NewLimiter(tt.n).Size(); got != tt.want {
				t.Errorf("Size() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDispatchNeverExceedsLimit(t *testing.T) {
	limiter := worker.NewLimiter(4)

	var inFlight, peak, calls atomic.Int32
	items := make([]int, 10)
	for i := range items {
		items[i] = i
	}

	results := worker.Dispatch(context.Background(), limiter, items, func(ctx context.Context, item int) (int, error) {
		calls.Add(1)
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return item * 2, nil
	})

	if got := peak.Load(); got > 4 {
		t.Errorf("peak in-flight = %d, want <= 4", got)
	}
	if got := peak.Load(); got < 2 {
		t.Errorf("peak in-flight = %d, tasks did not run concurrently", got)
	}
	if got := calls.Load(); got != 10 {
		t.Errorf("calls = %d, want 10", got)
	}
	for i, r := range results {
		if r.Err != nil || r.Value != i*2 {
			t.Errorf("results[%d] = %+v, want %d", i, r, i*2)
		}
	}
}

func TestDispatchPreservesOrderAndErrors(t *testing.T) {
	limiter := worker.NewLimiter(3)
	items := []string{"slow", "fail", "fast"}
	boom := errors.New("boom")

	results := worker.Dispatch(context.Background(), limiter, items, func(ctx context.Context, item string) (string, error) {
		switch item {
		case "slow":
			time.Sleep(30 * time.Millisecond)
		case "fail":
			return "", boom
		}
		return item + "!", nil
	})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Value != "slow!" || results[0].Err != nil {
		t.Errorf("results[0] = %+v", results[0])
	}
	if !errors.Is(results[1].Err, boom) {
		t.Errorf("results[1].Err = %v, want boom", results[1].Err)
	}
	if results[2].Value != "fast!" || results[2].Err != nil {
		t.Errorf("results[2] = %+v", results[2])
	}
}

func TestLimiterDoCanceledContext(t *testing.T) {
	limiter := worker.NewLimiter(1)

	hold := make(chan struct{})
	started := make(chan struct{})
	go limiter.Do(context.Background(), func(ctx context.Context) error {
		close(started)
		<-hold
		return nil
	})
	<-started
	defer close(hold)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	ran := false
	err := limiter.Do(ctx, func(ctx context.Context) error {
		ran = true
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() error = %v, want deadline exceeded", err)
	}
	if ran {
		t.Error("fn must not run without a slot")
	}
}

func TestDispatchEmpty(t *testing.T) {
	results := worker.Dispatch(context.Background(), worker.NewLimiter(2), nil, func(ctx context.Context, item int) (int, error) {
		t.Fatal("fn should not be called")
		return 0, nil
	})
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestDispatchStartsInItemOrder(t *testing.T) {
	limiter := worker.NewLimiter(1)
	items := []int{0, 1, 2, 3, 4, 5, 6, 7}

	started := make(chan int, len(items))
	worker.Dispatch(context.Background(), limiter, items, func(ctx context.Context, item int) (struct{}, error) {
		started <- item
		return struct{}{}, nil
	})
	close(started)

	want := 0
	for item := range started {
		if item != want {
			t.Fatalf("task %d started, want task %d", item, want)
		}
		want++
	}
}
