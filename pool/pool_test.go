package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type resource struct{ n int64 }

type tracker struct {
	created   atomic.Int64
	destroyed atomic.Int64
	live      atomic.Int64
	maxLive   atomic.Int64
}

func (tr *tracker) factory(ctx context.Context) (*resource, error) {
	n := tr.created.Add(1)
	live := tr.live.Add(1)
	for {
		m := tr.maxLive.Load()
		if live <= m || tr.maxLive.CompareAndSwap(m, live) {
			break
		}
	}
	return &resource{n: n}, nil
}

func (tr *tracker) destroyer(*resource) {
	tr.destroyed.Add(1)
	tr.live.Add(-1)
}

func TestPool_NeverExceedsCapacity(t *testing.T) {
	tr := &tracker{}
	p := New(Config{Capacity: 2}, tr.factory, tr.destroyer)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := p.Get(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			time.Sleep(time.Millisecond)
			lease.Release(true)
		}()
	}
	wg.Wait()

	if got := tr.maxLive.Load(); got > 2 {
		t.Errorf("%d resources alive at once, capacity is 2", got)
	}
	if tr.created.Load() != 20 || tr.destroyed.Load() != 20 {
		t.Errorf("created=%d destroyed=%d, want 20/20 without reuse", tr.created.Load(), tr.destroyed.Load())
	}
	if s := p.Stats(); s.InUse != 0 || s.Capacity != 2 {
		t.Errorf("stats after drain = %+v", s)
	}
}

func TestLease_ReleaseOnce(t *testing.T) {
	tr := &tracker{}
	p := New(Config{Capacity: 1}, tr.factory, tr.destroyer)

	lease, err := p.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !lease.Release(false) {
		t.Error("first release reported no-op")
	}
	if lease.Release(false) {
		t.Error("second release was not a no-op")
	}
	if got := tr.destroyed.Load(); got != 1 {
		t.Errorf("destroyed %d times, want 1", got)
	}

	// The single slot must be free again, and only once.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	next, err := p.Get(ctx)
	if err != nil {
		t.Fatalf("slot not freed: %v", err)
	}
	defer next.Release(true)
	if s := p.Stats(); s.InUse != 1 {
		t.Errorf("InUse = %d, want 1", s.InUse)
	}
}

func TestPool_GetHonoursContext(t *testing.T) {
	tr := &tracker{}
	p := New(Config{Capacity: 1}, tr.factory, tr.destroyer)
	held, _ := p.Get(context.Background())
	defer held.Release(true)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Get(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestPool_ReuseAndRetire(t *testing.T) {
	tr := &tracker{}
	p := New(Config{Capacity: 1, Reuse: true, MaxUses: 3}, tr.factory, tr.destroyer)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 4; i++ {
		lease, err := p.Get(ctx)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, lease.Value().n)
		lease.Release(true)
	}
	// Used three times, retired, then a fresh one.
	want := []int64{1, 1, 1, 2}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("resource sequence = %v, want %v", ids, want)
		}
	}

	// An unhealthy release destroys even with reuse on.
	lease, _ := p.Get(ctx)
	lease.Release(false)
	next, _ := p.Get(ctx)
	defer next.Release(true)
	if next.Value().n != 3 {
		t.Errorf("failed resource was reused (got %d)", next.Value().n)
	}
}

func TestPool_FactoryErrorFreesSlot(t *testing.T) {
	fail := true
	p := New(Config{Capacity: 1}, func(ctx context.Context) (*resource, error) {
		if fail {
			return nil, errors.New("launch failed")
		}
		return &resource{}, nil
	}, func(*resource) {})

	if _, err := p.Get(context.Background()); err == nil {
		t.Fatal("expected factory error")
	}
	fail = false
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	lease, err := p.Get(ctx)
	if err != nil {
		t.Fatalf("slot leaked after factory error: %v", err)
	}
	lease.Release(true)
}

func TestPool_Close(t *testing.T) {
	tr := &tracker{}
	p := New(Config{Capacity: 2, Reuse: true}, tr.factory, tr.destroyer)
	ctx := context.Background()

	idle, _ := p.Get(ctx)
	idle.Release(true)
	busy, _ := p.Get(ctx)

	p.Close()
	if _, err := p.Get(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Get after Close: err = %v", err)
	}
	busy.Release(true)
	if tr.live.Load() != 0 {
		t.Errorf("%d resources still alive after Close", tr.live.Load())
	}
}
