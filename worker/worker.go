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

// Package worker gives the agent's long-running components — the reader's
// per-child loops, the sender, and the status server — a single shared
// lifecycle: named start/stop/restart with uptime tracking and a bounded
// recent-error list, on top of runner/startStop. Components embed a *Worker
// instead of reimplementing goroutine bookkeeping. The collector manager's
// tick runs on runner/ticker instead.
package worker

import (
	"context"
	"fmt"

	"github.com/nabbar/tsdagent/runner"
	"github.com/nabbar/tsdagent/runner/startStop"
	"github.com/sirupsen/logrus"
)

// Worker wraps a named, panic-contained startStop.StartStop. The name is
// used for log fields and for the status surface, so every component's
// errors and uptime can be told apart.
type Worker struct {
	name string
	r    startStop.StartStop
}

// New builds a Worker named name that runs fn until ctx is cancelled or fn
// returns. fn is expected to block until one of those happens; a panic
// inside fn is recovered, logged, and recorded as the worker's last error
// rather than crashing the process. stop, if non-nil, is invoked to
// interrupt fn's blocking work; if stop is nil the worker relies solely on
// ctx cancellation.
func New(name string, fn func(ctx context.Context) error, stop func(ctx context.Context) error) *Worker {
	w := &Worker{name: name}

	run := func(ctx context.Context) (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				runner.RecoveryCaller(name, rec)
				err = fmt.Errorf("%s: recovered panic: %v", name, rec)
			}
		}()
		if fn == nil {
			return nil
		}
		return fn(ctx)
	}

	w.r = startStop.New(run, stop)
	return w
}

// Start runs the worker's function in a new goroutine and returns without
// waiting for it; an error returned by the function, or a recovered panic,
// is recorded in ErrorsList rather than returned from Start.
func (w *Worker) Start(ctx context.Context) error {
	logrus.WithField("worker", w.name).Info("starting")
	return w.r.Start(ctx)
}

// Stop asks the worker to shut down and waits for it to do so or for ctx to
// expire, whichever comes first.
func (w *Worker) Stop(ctx context.Context) error {
	logrus.WithField("worker", w.name).Info("stopping")
	return w.r.Stop(ctx)
}

// Restart stops then starts the worker.
func (w *Worker) Restart(ctx context.Context) error {
	return w.r.Restart(ctx)
}

// Name returns the worker's label.
func (w *Worker) Name() string {
	return w.name
}

// IsRunning reports whether the worker's function is currently executing.
func (w *Worker) IsRunning() bool {
	return w.r.IsRunning()
}

// Uptime returns how long the worker has been running, or zero if stopped.
func (w *Worker) Uptime() string {
	return w.r.Uptime().String()
}

// ErrorsLast returns the most recently recorded error, or nil if none.
func (w *Worker) ErrorsLast() error {
	return w.r.ErrorsLast()
}

// ErrorsList returns the bounded history of recorded errors, oldest first.
func (w *Worker) ErrorsList() []error {
	return w.r.ErrorsList()
}
