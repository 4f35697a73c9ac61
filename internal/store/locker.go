package store

import (
	"strings"
	"sync"
)

// Locker serializes read-modify-write cycles on one client's record.
// A single instance is shared by every code path that mutates records.
type Locker struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func NewLocker() *Locker {
	return &Locker{m: map[string]*sync.Mutex{}}
}

// Lock acquires the mutex for client and returns the unlock func.
// Keys are case-insensitive, matching how client names resolve, so
// every casing of a name takes the same mutex.
func (l *Locker) Lock(client string) func() {
	client = strings.ToLower(client)
	l.mu.Lock()
	m, ok := l.m[client]
	if !ok {
		m = &sync.Mutex{}
		l.m[client] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}
