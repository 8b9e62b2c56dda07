// Package emergency keeps a bounded in-memory log of internal failures for
// the cases where the audit store itself is the thing that failed. It is the
// fallback of last resort and deliberately lives outside the audit path.
package emergency

import (
	"sync"
	"time"
)

// Note describes one failure that could not be durably recorded.
type Note struct {
	Op     string    `json:"op"`
	Detail string    `json:"detail"`
	At     time.Time `json:"at"`
}

// Log is a fixed-capacity ring of failure notes. When full, recording a new
// note overwrites the oldest one; losing old emergency notes beats blocking
// or growing without bound while storage is down.
type Log struct {
	buf  []Note
	head int
	size int
	mu   sync.Mutex
}

// NewLog creates a Log with the given capacity. A default capacity of 1 is
// used if the given value is zero.
func NewLog(capacity uint) *Log {
	return &Log{
		buf: make([]Note, max(1, capacity)),
	}
}

// Record appends a note, overwriting the oldest one if the ring is full.
func (l *Log) Record(op, detail string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := (l.head + l.size) % cap(l.buf)
	l.buf[idx] = Note{Op: op, Detail: detail, At: time.Now()}
	if l.size == cap(l.buf) {
		l.head = (l.head + 1) % cap(l.buf)
		return
	}
	l.size++
}

// Recent returns up to n notes, newest first.
func (l *Log) Recent(n int) []Note {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n > l.size || n < 0 {
		n = l.size
	}
	notes := make([]Note, 0, n)
	for i := 0; i < n; i++ {
		idx := (l.head + l.size - 1 - i + cap(l.buf)) % cap(l.buf)
		notes = append(notes, l.buf[idx])
	}
	return notes
}

// Size returns the number of notes currently held.
func (l *Log) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.size
}
