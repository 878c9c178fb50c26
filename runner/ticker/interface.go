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

// Package ticker wraps a time.Ticker with the same supervised start/stop
// lifecycle as runner/startStop, so fixed-cadence loops (the collector
// manager's rescan tick) don't hand-roll their
// own goroutine and shutdown bookkeeping.
package ticker

import (
	"context"
	"sync"
	"time"

	"github.com/nabbar/tsdagent/runner/startStop"
)

// minInterval is the floor applied to any requested duration so a
// misconfigured zero/negative/sub-millisecond value cannot spin a tight
// loop.
const minInterval = time.Millisecond

// maxErrorHistory bounds the ticker's own error ring (separate from the
// underlying startStop runner's, since a ticker's FuncTick errors must not
// stop the loop the way a startStop FuncStart error stops its runner).
const maxErrorHistory = 32

// FuncTick is invoked on every tick. Returning an error does not stop the
// ticker; it is recorded the same way startStop.FuncStart errors are.
type FuncTick func(ctx context.Context, tck *time.Ticker) error

// Ticker is a supervised periodic task.
type Ticker interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	IsRunning() bool
	Uptime() time.Duration
	ErrorsLast() error
	ErrorsList() []error
}

type ticker struct {
	d  time.Duration
	fn FuncTick
	r  startStop.StartStop

	errMu sync.Mutex
	errs  []error
}

// New creates a Ticker that invokes fn every d (clamped to at least
// minInterval). A nil fn is tolerated: the ticker runs and ticks without
// doing anything.
func New(d time.Duration, fn FuncTick) Ticker {
	if d < minInterval {
		d = minInterval
	}

	t := &ticker{d: d, fn: fn}
	t.r = startStop.New(t.run, t.close)
	return t
}

// run ticks until ctx is cancelled. Unlike a plain startStop.FuncStart, an
// error from FuncTick is recorded but never stops the loop: a periodic
// rescan should keep going after one bad tick.
func (t *ticker) run(ctx context.Context) error {
	tck := time.NewTicker(t.d)
	defer tck.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tck.C:
			if t.fn == nil {
				continue
			}
			if e := t.fn(ctx, tck); e != nil {
				t.addError(e)
			}
		}
	}
}

func (t *ticker) close(_ context.Context) error {
	return nil
}

func (t *ticker) addError(err error) {
	if err == nil {
		return
	}

	t.errMu.Lock()
	defer t.errMu.Unlock()

	t.errs = append(t.errs, err)
	if len(t.errs) > maxErrorHistory {
		t.errs = t.errs[len(t.errs)-maxErrorHistory:]
	}
}

func (t *ticker) Start(ctx context.Context) error {
	t.errMu.Lock()
	t.errs = nil
	t.errMu.Unlock()

	return t.r.Start(ctx)
}

func (t *ticker) Stop(ctx context.Context) error { return t.r.Stop(ctx) }

func (t *ticker) Restart(ctx context.Context) error {
	if e := t.Stop(ctx); e != nil {
		return e
	}
	return t.Start(ctx)
}

func (t *ticker) IsRunning() bool       { return t.r.IsRunning() }
func (t *ticker) Uptime() time.Duration { return t.r.Uptime() }

func (t *ticker) ErrorsLast() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()

	if len(t.errs) == 0 {
		return nil
	}
	return t.errs[len(t.errs)-1]
}

func (t *ticker) ErrorsList() []error {
	t.errMu.Lock()
	defer t.errMu.Unlock()

	out := make([]error, len(t.errs))
	copy(out, t.errs)
	return out
}
