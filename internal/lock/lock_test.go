package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"chatgames/internal/kv"
)

func TestAcquireExcludes(t *testing.T) {
	ctx := context.Background()
	m := NewManager(kv.NewMemory())

	token, ok, err := m.Acquire(ctx, "lowcard:lock:r1", 30*time.Second)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if len(token) != 16 {
		t.Fatalf("token %q; want 16 hex chars", token)
	}

	_, ok, err = m.Acquire(ctx, "lowcard:lock:r1", 30*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("second acquire must fail while lock held")
	}

	// other rooms are unaffected
	_, ok, _ = m.Acquire(ctx, "lowcard:lock:r2", 30*time.Second)
	if !ok {
		t.Fatal("lock on another room must be independent")
	}
}

func TestReleaseRequiresToken(t *testing.T) {
	ctx := context.Background()
	m := NewManager(kv.NewMemory())

	token, _, _ := m.Acquire(ctx, "lowcard:lock:r1", 30*time.Second)

	ok, err := m.Release(ctx, "lowcard:lock:r1", "deadbeefdeadbeef")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("release with a foreign token must not delete the lock")
	}
	if _, gotOK, _ := m.Acquire(ctx, "lowcard:lock:r1", time.Second); gotOK {
		t.Fatal("lock must still be held after failed release")
	}

	ok, err = m.Release(ctx, "lowcard:lock:r1", token)
	if err != nil || !ok {
		t.Fatalf("owner release: ok=%v err=%v", ok, err)
	}
	if _, gotOK, _ := m.Acquire(ctx, "lowcard:lock:r1", time.Second); !gotOK {
		t.Fatal("lock must be free after owner release")
	}
}

func TestExpiredHolderCannotRelease(t *testing.T) {
	ctx := context.Background()
	m := NewManager(kv.NewMemory())

	stale, _, _ := m.Acquire(ctx, "lowcard:lock:r1", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	fresh, ok, _ := m.Acquire(ctx, "lowcard:lock:r1", 30*time.Second)
	if !ok {
		t.Fatal("lock should be acquirable after TTL expiry")
	}

	if ok, _ := m.Release(ctx, "lowcard:lock:r1", stale); ok {
		t.Fatal("stale holder must not release the new holder's lock")
	}
	if ok, _ := m.Release(ctx, "lowcard:lock:r1", fresh); !ok {
		t.Fatal("new holder must still own the lock")
	}
}

func TestAcquireWithRetry(t *testing.T) {
	ctx := context.Background()
	m := NewManager(kv.NewMemory())

	// held briefly, then expires between retries
	if _, ok, _ := m.Acquire(ctx, "lowcard:joinlock:r1", 5*time.Millisecond); !ok {
		t.Fatal("setup acquire failed")
	}
	_, ok, err := m.AcquireWithRetry(ctx, "lowcard:joinlock:r1", 15*time.Second, 5, 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("retry should win once the previous holder expires")
	}

	// permanently held: all attempts exhausted
	_, ok, err = m.AcquireWithRetry(ctx, "lowcard:joinlock:r1", 15*time.Second, 3, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("retry must give up while the lock stays held")
	}
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	ctx := context.Background()
	m := NewManager(kv.NewMemory())

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := m.Acquire(ctx, "lowcard:lock:r1", 30*time.Second); ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("winners = %d; want exactly 1", winners)
	}
}
