package lockreg_test

import (
	"sync"
	"testing"
	"time"

	"github.com/vsariola/recall"
	"github.com/vsariola/recall/lockreg"
)

func TestRecursiveLock(t *testing.T) {
	r := lockreg.New()
	h := r.NewHolder()
	r.Register(1)
	r.Lock(h, 1)
	r.Lock(h, 1)
	if got := r.Held(h); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected holder to hold [1], got %v", got)
	}
	r.Unlock(h, 1)
	if got := r.Held(h); len(got) != 1 {
		t.Fatalf("one unlock should keep the lock, held %v", got)
	}
	r.Unlock(h, 1)
	if got := r.Held(h); len(got) != 0 {
		t.Fatalf("expected nothing held, got %v", got)
	}
}

func TestLockBlocksOtherHolder(t *testing.T) {
	r := lockreg.New()
	h1, h2 := r.NewHolder(), r.NewHolder()
	r.Lock(h1, 5)
	acquired := make(chan struct{})
	go func() {
		r.Lock(h2, 5)
		close(acquired)
		r.Unlock(h2, 5)
	}()
	select {
	case <-acquired:
		t.Fatal("second holder acquired a held lock")
	case <-time.After(20 * time.Millisecond):
	}
	r.Unlock(h1, 5)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second holder never acquired the lock")
	}
}

func TestLockOrderViolationPanics(t *testing.T) {
	r := lockreg.New()
	h := r.NewHolder()
	r.Lock(h, 10)
	defer func() {
		v := recover()
		if _, ok := v.(recall.LockOrderViolation); !ok {
			t.Fatalf("expected LockOrderViolation panic, got %v", v)
		}
	}()
	r.Lock(h, 3)
}

func TestLockAllOrdersAndDedups(t *testing.T) {
	r := lockreg.New()
	h := r.NewHolder()
	unlock := r.LockAll(h, 9, 2, 9, 4)
	held := r.Held(h)
	want := []lockreg.Key{2, 4, 9}
	if len(held) != len(want) {
		t.Fatalf("held %v, want %v", held, want)
	}
	for i := range want {
		if held[i] != want[i] {
			t.Fatalf("held %v, want %v", held, want)
		}
	}
	unlock()
	if len(r.Held(h)) != 0 {
		t.Fatalf("expected all locks released, held %v", r.Held(h))
	}
}

func TestLockAllConcurrentNoDeadlock(t *testing.T) {
	r := lockreg.New()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h := r.NewHolder()
			for j := 0; j < 200; j++ {
				var unlock func()
				if i%2 == 0 {
					unlock = r.LockAll(h, 1, 2, 3)
				} else {
					unlock = r.LockAll(h, 3, 2, 1)
				}
				counter++
				unlock()
			}
		}(i)
	}
	wg.Wait()
	if counter != 8*200 {
		t.Fatalf("counter = %d, want %d", counter, 8*200)
	}
}

func TestUnregister(t *testing.T) {
	r := lockreg.New()
	r.Register(7)
	r.Register(7)
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
	r.Unregister(7)
	if r.Lookup(7) != nil {
		t.Fatal("expected lookup of unregistered key to return nil")
	}
}
