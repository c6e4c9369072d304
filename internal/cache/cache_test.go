package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/immanelg/tgpawn/internal/board"
)

func countingLoader(n *int32) Loader {
	return func(ctx context.Context) (*board.Board, error) {
		atomic.AddInt32(n, 1)
		return board.Start(), nil
	}
}

func TestAcquireLoadsOnce(t *testing.T) {
	c := New()
	ctx := context.Background()

	var loads int32
	for i := 0; i < 3; i++ {
		h, err := c.Acquire(ctx, 7, countingLoader(&loads))
		if err != nil {
			t.Fatalf("Acquire #%d: %v", i, err)
		}
		if h.Board == nil {
			t.Fatalf("Acquire #%d: nil board", i)
		}
		h.Release()
	}
	if loads != 1 {
		t.Fatalf("loader ran %d times, want 1", loads)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
}

func TestEntriesAreIndependent(t *testing.T) {
	c := New()
	ctx := context.Background()

	var loads int32
	for _, id := range []int64{1, 2, 3} {
		h, err := c.Acquire(ctx, id, countingLoader(&loads))
		if err != nil {
			t.Fatalf("Acquire(%d): %v", id, err)
		}
		h.Release()
	}
	if loads != 3 {
		t.Fatalf("loader ran %d times, want 3", loads)
	}
	if c.Len() != 3 {
		t.Fatalf("Len = %d, want 3", c.Len())
	}
}

func TestEvictForcesReload(t *testing.T) {
	c := New()
	ctx := context.Background()

	var loads int32
	h, err := c.Acquire(ctx, 7, countingLoader(&loads))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	h.Evict()
	h.Release()

	if c.Len() != 0 {
		t.Fatalf("Len after evict = %d, want 0", c.Len())
	}

	h, err = c.Acquire(ctx, 7, countingLoader(&loads))
	if err != nil {
		t.Fatalf("Acquire after evict: %v", err)
	}
	h.Release()
	if loads != 2 {
		t.Fatalf("loader ran %d times, want 2", loads)
	}
}

func TestLoadErrorLeavesNoEntry(t *testing.T) {
	c := New()
	ctx := context.Background()

	boom := errors.New("boom")
	_, err := c.Acquire(ctx, 7, func(ctx context.Context) (*board.Board, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Acquire error = %v, want boom", err)
	}
	if c.Len() != 0 {
		t.Fatalf("Len after failed load = %d, want 0", c.Len())
	}

	var loads int32
	h, err := c.Acquire(ctx, 7, countingLoader(&loads))
	if err != nil {
		t.Fatalf("Acquire after failed load: %v", err)
	}
	h.Release()
	if loads != 1 {
		t.Fatalf("loader ran %d times after failed load, want 1", loads)
	}
}

func TestAcquireSerializesPerGame(t *testing.T) {
	c := New()
	ctx := context.Background()

	var loads int32
	var inside int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := c.Acquire(ctx, 7, countingLoader(&loads))
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			if n := atomic.AddInt32(&inside, 1); n != 1 {
				t.Errorf("%d goroutines inside the critical section", n)
			}
			atomic.AddInt32(&inside, -1)
			h.Release()
		}()
	}
	wg.Wait()
	if loads != 1 {
		t.Fatalf("loader ran %d times, want 1", loads)
	}
}

func TestWaiterBehindEvictionReloads(t *testing.T) {
	c := New()
	ctx := context.Background()

	var loads int32
	h, err := c.Acquire(ctx, 7, countingLoader(&loads))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h2, err := c.Acquire(ctx, 7, countingLoader(&loads))
		if err != nil {
			t.Errorf("queued Acquire: %v", err)
			return
		}
		if h2.Board == nil {
			t.Errorf("queued Acquire got nil board")
		}
		h2.Release()
	}()

	// The waiter must come back with a freshly loaded board, not the
	// evicted one.
	h.Evict()
	h.Release()
	<-done

	if atomic.LoadInt32(&loads) != 2 {
		t.Fatalf("loader ran %d times, want 2", loads)
	}
}
