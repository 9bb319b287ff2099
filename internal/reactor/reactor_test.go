package reactor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/lifeline/internal/adapters/log"
)

func TestLoop_RunsInPostingOrder(t *testing.T) {
	l := New(log.NewNoopLogger())

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	l.Post(l.Stop)

	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("got %v, want ascending order", got)
		}
	}
	if len(got) != 5 {
		t.Fatalf("ran %d functions, want 5", len(got))
	}
}

func TestLoop_PostFromOtherGoroutines(t *testing.T) {
	l := New(log.NewNoopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go l.Run(ctx)

	var wg sync.WaitGroup
	var mu sync.Mutex
	count := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Post(func() {
				mu.Lock()
				count++
				mu.Unlock()
			})
		}()
	}
	wg.Wait()

	done := make(chan struct{})
	l.Post(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not drain")
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 50 {
		t.Errorf("count = %d, want 50", count)
	}
}

func TestLoop_PostAfterStopRejected(t *testing.T) {
	l := New(log.NewNoopLogger())
	l.Stop()
	if l.Post(func() {}) {
		t.Error("Post() after Stop = true, want false")
	}
	if err := l.Run(context.Background()); err != nil {
		t.Errorf("Run() error = %v", err)
	}
	select {
	case <-l.Done():
	default:
		t.Error("Done() not closed after Run returned")
	}
}

func TestLoop_PanicDoesNotKillLoop(t *testing.T) {
	l := New(log.NewNoopLogger())
	ran := false
	l.Post(func() { panic("boom") })
	l.Post(func() { ran = true })
	l.Post(l.Stop)

	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !ran {
		t.Error("function after panic did not run")
	}
}

func TestLoop_ContextCancel(t *testing.T) {
	l := New(log.NewNoopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Run(ctx); err != context.Canceled {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}
