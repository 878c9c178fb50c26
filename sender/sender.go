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

package sender

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nabbar/tsdagent/queue"
	"github.com/sirupsen/logrus"
)

// Config carries the sender's tunables, all sourced from configuration.
type Config struct {
	HostTag           string
	MaxBatch          int
	ReconnectInterval time.Duration
	DrainPollInterval time.Duration
}

// Sender drains the outbound queue in bounded batches and delivers them to
// one endpoint from pool via transport, handling blacklisting and
// reconnect pacing.
type Sender struct {
	cfg       Config
	queue     *queue.Queue
	pool      *Pool
	transport Transport

	delivered       atomic.Int64
	rejected        atomic.Int64
	failed          atomic.Int64
	blacklistEvents atomic.Int64
}

// Stats is a point-in-time copy of the sender's delivery counters, used by
// the status surface's self-observability gauges.
type Stats struct {
	Delivered       int64
	Rejected        int64
	Failed          int64
	BlacklistEvents int64
}

// Stats returns the current delivery counters.
func (s *Sender) Stats() Stats {
	return Stats{
		Delivered:       s.delivered.Load(),
		Rejected:        s.rejected.Load(),
		Failed:          s.failed.Load(),
		BlacklistEvents: s.blacklistEvents.Load(),
	}
}

// New builds a Sender.
func New(cfg Config, q *queue.Queue, pool *Pool, transport Transport) *Sender {
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 200
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 5 * time.Minute
	}
	if cfg.DrainPollInterval <= 0 {
		cfg.DrainPollInterval = 200 * time.Millisecond
	}
	return &Sender{cfg: cfg, queue: q, pool: pool, transport: transport}
}

// Run drains and delivers batches until ctx is cancelled.
func (s *Sender) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.flushOnce()
			return nil
		default:
		}

		if !s.tick() {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.cfg.DrainPollInterval):
			}
		}
	}
}

// flushOnce makes one best-effort attempt to deliver whatever remains
// queued, used during shutdown.
func (s *Sender) flushOnce() {
	s.tick()
}

// ForceTick runs a single drain-and-deliver cycle outside of Run's loop. It
// exists so callers (and tests) can drive delivery deterministically instead
// of waiting on DrainPollInterval.
func (s *Sender) ForceTick() bool {
	return s.tick()
}

// tick drains up to MaxBatch lines and attempts one delivery. It returns
// true if there was work to do (so the caller can avoid sleeping between
// bursts).
func (s *Sender) tick() bool {
	lines := s.queue.Dequeue(s.cfg.MaxBatch)
	if len(lines) == 0 {
		return false
	}

	if s.cfg.HostTag != "" {
		lines = injectHostTag(lines, s.cfg.HostTag)
	}

	now := time.Now()
	ep, ok := s.pool.Pick(now)
	if !ok {
		s.queue.Requeue(lines)
		return false
	}

	switch s.transport.Send(ep, lines) {
	case OutcomeDelivered:
		s.pool.Clear(ep)
		s.delivered.Add(int64(len(lines)))
	case OutcomeRejected:
		logrus.WithField("endpoint", ep.String()).WithField("count", len(lines)).Warn("dropped permanently rejected batch")
		s.rejected.Add(int64(len(lines)))
	case OutcomeFailed:
		s.pool.Blacklist(ep, now, s.cfg.ReconnectInterval)
		s.queue.Requeue(lines)
		s.failed.Add(int64(len(lines)))
		s.blacklistEvents.Add(1)
	}

	return true
}

// injectHostTag appends "host=<tag>" to each line unless it already carries
// a host= tag, matching spec.md §4.3's host-tag override rule. Lines here
// are already-serialized "put ..." wire text, so the tag is appended
// textually rather than through sample.Sample.
func injectHostTag(lines []string, tag string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		if strings.Contains(l, " host=") {
			out[i] = l
			continue
		}
		out[i] = l + " host=" + tag
	}
	return out
}
