/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package queue implements the bounded outbound FIFO that sits between the
// reader workers and the sender. Enqueue never blocks: once the queue is at
// capacity the newest line is dropped and a counter is incremented instead,
// so a slow or unreachable TSD cannot stall the readers or the collectors
// upstream of them.
package queue

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Queue is a single bounded FIFO of already-serialized wire lines. It is
// safe for concurrent use by many producers (reader workers) and one
// consumer (the sender's batch drain).
type Queue struct {
	mu       sync.Mutex
	items    []string
	capacity int

	dropped      atomic.Int64
	lastDropWarn atomic.Int64 // unix nano of the last rate-limited warning
}

// dropWarnInterval bounds how often a queue-full condition is logged, so a
// sustained overload produces one warning per interval instead of one per
// dropped line.
const dropWarnInterval = 5 * time.Second

// New builds a Queue bounded at capacity items. A non-positive capacity is
// clamped to 1 so the queue is never accidentally unbounded or unusable.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		items:    make([]string, 0, capacity),
		capacity: capacity,
	}
}

// Enqueue appends line to the tail of the queue. If the queue is already at
// capacity, line is dropped (not the oldest entry: the newest arrival loses)
// and the drop counter is incremented. Enqueue never blocks and never
// returns an error; callers that need to know whether the line was kept
// should compare Depth before and after, or just consult Dropped.
func (q *Queue) Enqueue(line string) {
	q.mu.Lock()
	full := len(q.items) >= q.capacity
	if !full {
		q.items = append(q.items, line)
	}
	q.mu.Unlock()

	if full {
		q.dropped.Add(1)
		q.warnOverflow()
	}
}

func (q *Queue) warnOverflow() {
	now := time.Now().UnixNano()
	last := q.lastDropWarn.Load()
	if now-last < int64(dropWarnInterval) {
		return
	}
	if !q.lastDropWarn.CompareAndSwap(last, now) {
		return
	}
	logrus.WithField("dropped_total", q.dropped.Load()).
		WithField("capacity", q.capacity).
		Warn("outbound queue is full, dropping newest samples")
}

// Dequeue pops up to max lines from the head of the queue, preserving FIFO
// order. It returns fewer than max lines if the queue holds fewer, and a nil
// slice if the queue is empty.
func (q *Queue) Dequeue(max int) []string {
	if max <= 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	if max > len(q.items) {
		max = len(q.items)
	}

	out := make([]string, max)
	copy(out, q.items[:max])
	q.items = q.items[max:]
	return out
}

// Requeue pushes lines back onto the head of the queue, in their original
// order, as if they had never been dequeued. It is used by the sender when a
// batch fails to send and must be retried. Requeue can itself overflow the
// queue if readers filled the gap in the meantime; the overflow accounting
// is identical to Enqueue's.
func (q *Queue) Requeue(lines []string) {
	if len(lines) == 0 {
		return
	}

	q.mu.Lock()
	room := q.capacity - len(q.items)
	if room <= 0 {
		q.mu.Unlock()
		q.dropped.Add(int64(len(lines)))
		q.warnOverflow()
		return
	}

	kept := lines
	overflow := 0
	if len(lines) > room {
		overflow = len(lines) - room
		kept = lines[:room]
	}

	q.items = append(kept, q.items...)
	q.mu.Unlock()

	if overflow > 0 {
		q.dropped.Add(int64(overflow))
		q.warnOverflow()
	}
}

// Depth returns the current number of queued lines.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Capacity returns the configured maximum depth.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Dropped returns the cumulative number of lines dropped for overflow since
// construction.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}
