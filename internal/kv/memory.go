package kv

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

type memEntry struct {
	value    string
	expireAt time.Time // zero means no expiry
}

// Memory is an in-process Store used by tests. Expiry is lazy: entries are
// dropped when a read or scan touches them past their deadline. Published
// messages are recorded per channel for assertions.
type Memory struct {
	mu        sync.Mutex
	entries   map[string]memEntry
	hashes    map[string]map[string]string
	published map[string][]string
}

func NewMemory() *Memory {
	return &Memory{
		entries:   make(map[string]memEntry),
		hashes:    make(map[string]map[string]string),
		published: make(map[string][]string),
	}
}

func (m *Memory) alive(key string) (memEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return memEntry{}, false
	}
	if !e.expireAt.IsZero() && time.Now().After(e.expireAt) {
		delete(m.entries, key)
		return memEntry{}, false
	}
	return e, true
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.alive(key)
	if !ok {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memEntry{value: value, expireAt: deadline(ttl)}
	return nil
}

func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alive(key); ok {
		return false, nil
	}
	m.entries[key] = memEntry{value: value, expireAt: deadline(ttl)}
	return true, nil
}

func (m *Memory) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.alive(key)
	if !ok || e.value != value {
		return false, nil
	}
	delete(m.entries, key)
	return true, nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
		delete(m.hashes, k)
	}
	return nil
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.alive(key)
	if !ok {
		return nil
	}
	e.expireAt = deadline(ttl)
	m.entries[key] = e
	return nil
}

func (m *Memory) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.entries {
		if _, ok := m.alive(k); !ok {
			continue
		}
		if globMatch(pattern, k) {
			keys = append(keys, k)
		}
	}
	for k := range m.hashes {
		if globMatch(pattern, k) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.alive(key)
	var n int64
	if ok {
		parsed, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("kv: value at %s is not an integer", key)
		}
		n = parsed
	}
	n++
	m.entries[key] = memEntry{value: strconv.FormatInt(n, 10), expireAt: e.expireAt}
	return n, nil
}

func (m *Memory) HSet(_ context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (m *Memory) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.hashes[key]))
	for f, v := range m.hashes[key] {
		out[f] = v
	}
	return out, nil
}

func (m *Memory) Publish(_ context.Context, channel, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[channel] = append(m.published[channel], payload)
	return nil
}

// Published returns the messages sent to channel, oldest first.
func (m *Memory) Published(channel string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.published[channel]))
	copy(out, m.published[channel])
	return out
}

func deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

// globMatch supports the '*' wildcard only, which is all the engine uses.
func globMatch(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	for i := 1; i < len(parts)-1; i++ {
		idx := strings.Index(s, parts[i])
		if idx < 0 {
			return false
		}
		s = s[idx+len(parts[i]):]
	}
	return strings.HasSuffix(s, parts[len(parts)-1])
}
