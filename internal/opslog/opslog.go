// Package opslog keeps a bounded in-memory record of recent operations and
// fans new entries out to live subscribers.
package opslog

import (
	"sync"
	"time"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 100

const subscriberBuffer = 32

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Operation kinds appended by the request flow.
const (
	KindRequestReceived  = "request.received"
	KindRequestRejected  = "request.rejected"
	KindGeneratorStarted = "generator.started"
	KindRequestCompleted = "request.completed"
	KindRequestFailed    = "request.failed"
	KindSpecUpdated      = "spec.updated"
	KindRegistryRefresh  = "registry.refreshed"
)

type Entry struct {
	Seq       uint64    `json:"seq"`
	Time      time.Time `json:"time"`
	Kind      string    `json:"kind"`
	RequestID string    `json:"requestId,omitempty"`
	Message   string    `json:"message"`
	Level     Level     `json:"level"`
}

// Log is a ring buffer of entries. The oldest entry is evicted when full.
type Log struct {
	mu     sync.Mutex
	buf    []Entry
	start  int
	size   int
	seq    uint64
	subs   map[uint64]chan Entry
	nextID uint64
	now    func() time.Time
}

func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		buf:  make([]Entry, capacity),
		subs: make(map[uint64]chan Entry),
		now:  time.Now,
	}
}

func (l *Log) Capacity() int {
	return len(l.buf)
}

// Append records e, assigning its sequence number and, when unset, its time
// and level. Subscribers whose buffers are full miss the entry.
func (l *Log) Append(e Entry) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	e.Seq = l.seq
	if e.Time.IsZero() {
		e.Time = l.now().UTC()
	}
	if e.Level == "" {
		e.Level = LevelInfo
	}

	idx := (l.start + l.size) % len(l.buf)
	if l.size == len(l.buf) {
		l.buf[l.start] = e
		l.start = (l.start + 1) % len(l.buf)
	} else {
		l.buf[idx] = e
		l.size++
	}

	for _, ch := range l.subs {
		select {
		case ch <- e:
		default:
		}
	}
	return e
}

// Info appends an info entry.
func (l *Log) Info(kind, requestID, msg string) Entry {
	return l.Append(Entry{Kind: kind, RequestID: requestID, Message: msg, Level: LevelInfo})
}

func (l *Log) Warn(kind, requestID, msg string) Entry {
	return l.Append(Entry{Kind: kind, RequestID: requestID, Message: msg, Level: LevelWarn})
}

func (l *Log) Error(kind, requestID, msg string) Entry {
	return l.Append(Entry{Kind: kind, RequestID: requestID, Message: msg, Level: LevelError})
}

// Recent returns up to n entries, newest first. n <= 0 returns everything.
func (l *Log) Recent(n int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > l.size {
		n = l.size
	}
	out := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		idx := (l.start + l.size - 1 - i) % len(l.buf)
		out = append(out, l.buf[idx])
	}
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Subscribe returns a channel receiving entries appended from now on. The
// cancel func closes the channel and is safe to call more than once.
func (l *Log) Subscribe() (<-chan Entry, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	ch := make(chan Entry, subscriberBuffer)
	l.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (l *Log) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}
