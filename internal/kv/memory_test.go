package kv

import (
	"context"
	"testing"
	"time"
)

func TestMemorySetGetDel(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.Get(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("Get(missing) err = %v; want ErrNotFound", err)
	}

	if err := m.Set(ctx, "a", "1", 0); err != nil {
		t.Fatal(err)
	}
	got, err := m.Get(ctx, "a")
	if err != nil || got != "1" {
		t.Fatalf("Get(a) = %q, %v; want 1, nil", got, err)
	}

	if err := m.Del(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get(ctx, "a"); err != ErrNotFound {
		t.Fatalf("Get after Del err = %v; want ErrNotFound", err)
	}
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.Set(ctx, "short", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if _, err := m.Get(ctx, "short"); err != ErrNotFound {
		t.Fatalf("expired key err = %v; want ErrNotFound", err)
	}

	m.Set(ctx, "long", "v", time.Minute)
	if _, err := m.Get(ctx, "long"); err != nil {
		t.Fatalf("live key err = %v", err)
	}
}

func TestMemorySetNX(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	ok, _ := m.SetNX(ctx, "lock", "tok1", time.Minute)
	if !ok {
		t.Fatal("first SetNX should win")
	}
	ok, _ = m.SetNX(ctx, "lock", "tok2", time.Minute)
	if ok {
		t.Fatal("second SetNX should lose")
	}

	// expiry frees the key for the next SetNX
	m.Set(ctx, "gone", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	ok, _ = m.SetNX(ctx, "gone", "v2", time.Minute)
	if !ok {
		t.Fatal("SetNX after expiry should win")
	}
}

func TestMemoryCompareAndDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.Set(ctx, "lock", "tok", time.Minute)

	ok, _ := m.CompareAndDelete(ctx, "lock", "other")
	if ok {
		t.Fatal("CompareAndDelete with wrong value should fail")
	}
	if _, err := m.Get(ctx, "lock"); err != nil {
		t.Fatal("key must survive a failed CompareAndDelete")
	}

	ok, _ = m.CompareAndDelete(ctx, "lock", "tok")
	if !ok {
		t.Fatal("CompareAndDelete with matching value should succeed")
	}
	if _, err := m.Get(ctx, "lock"); err != ErrNotFound {
		t.Fatal("key must be gone after CompareAndDelete")
	}
}

func TestMemoryKeysGlob(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.Set(ctx, "lowcard:game:r1", "{}", 0)
	m.Set(ctx, "lowcard:game:r2", "{}", 0)
	m.Set(ctx, "lowcard:deck:r1", "[]", 0)
	m.Set(ctx, "room:r1:lowcard:timer", "{}", 0)
	m.HSet(ctx, "flagbot:room:r9:bets", "u1", "{}")

	cases := []struct {
		pattern string
		want    int
	}{
		{"lowcard:game:*", 2},
		{"room:*:lowcard:timer", 1},
		{"flagbot:room:*:bets", 1},
		{"lowcard:game:r1", 1},
		{"nothing:*", 0},
	}
	for _, tc := range cases {
		keys, err := m.Keys(ctx, tc.pattern)
		if err != nil {
			t.Fatal(err)
		}
		if len(keys) != tc.want {
			t.Fatalf("Keys(%s) = %v; want %d keys", tc.pattern, keys, tc.want)
		}
	}
}

func TestMemoryHashAndPublish(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.HSet(ctx, "h", "f1", "v1")
	m.HSet(ctx, "h", "f2", "v2")
	all, err := m.HGetAll(ctx, "h")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all["f1"] != "v1" || all["f2"] != "v2" {
		t.Fatalf("HGetAll = %v", all)
	}

	m.Publish(ctx, "game:chat:message", "hello")
	m.Publish(ctx, "game:chat:message", "world")
	got := m.Published("game:chat:message")
	if len(got) != 2 || got[0] != "hello" || got[1] != "world" {
		t.Fatalf("Published = %v", got)
	}
}

func TestMemoryIncr(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	n, err := m.Incr(ctx, "counter")
	if err != nil || n != 1 {
		t.Fatalf("first Incr = %d, %v; want 1, nil", n, err)
	}
	n, _ = m.Incr(ctx, "counter")
	if n != 2 {
		t.Fatalf("second Incr = %d; want 2", n)
	}

	// expiry set afterwards survives further increments
	m.Expire(ctx, "counter", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	n, _ = m.Incr(ctx, "counter")
	if n != 1 {
		t.Fatalf("Incr after expiry = %d; want 1", n)
	}

	m.Set(ctx, "text", "abc", 0)
	if _, err := m.Incr(ctx, "text"); err == nil {
		t.Fatal("Incr on non-integer should fail")
	}
}
