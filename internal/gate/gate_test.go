package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGate_BoundsConcurrency(t *testing.T) {
	g := New(3)

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := WithSlot(context.Background(), g, func(ctx context.Context) int {
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				current.Add(-1)
				return 0
			})
			if err != nil {
				t.Errorf("WithSlot: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak.Load() > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak.Load())
	}
	if peak.Load() < 2 {
		t.Errorf("peak concurrency = %d, expected slots to be shared", peak.Load())
	}
	if g.InFlight() != 0 {
		t.Errorf("in flight after completion = %d", g.InFlight())
	}
}

func TestGate_ReturnsResult(t *testing.T) {
	g := New(1)
	got, err := WithSlot(context.Background(), g, func(ctx context.Context) []string {
		return []string{"a", "b"}
	})
	if err != nil {
		t.Fatalf("WithSlot: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %v", got)
	}
}

func TestGate_WaitsForSlot(t *testing.T) {
	g := New(1)
	release := make(chan struct{})
	holding := make(chan struct{})

	go func() {
		_ = g.Do(context.Background(), func(ctx context.Context) {
			close(holding)
			<-release
		})
	}()
	<-holding

	done := make(chan struct{})
	go func() {
		_ = g.Do(context.Background(), func(ctx context.Context) {})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second caller ran while the only slot was held")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second caller never acquired the freed slot")
	}
}

func TestGate_ContextCancelledWhileWaiting(t *testing.T) {
	g := New(1)
	release := make(chan struct{})
	holding := make(chan struct{})
	go func() {
		_ = g.Do(context.Background(), func(ctx context.Context) {
			close(holding)
			<-release
		})
	}()
	<-holding
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ran := false
	err := g.Do(ctx, func(ctx context.Context) { ran = true })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if ran {
		t.Error("fn ran without a slot")
	}
}

func TestNew_DefaultSize(t *testing.T) {
	if New(0).Size() != DefaultSize {
		t.Errorf("size = %d, want %d", New(0).Size(), DefaultSize)
	}
}
