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

// Package startStop provides a minimal start/stop/restart lifecycle wrapper
// around a pair of functions, with uptime tracking and a bounded history of
// the errors those functions returned.
//
// It is the building block every long-running component of the collection
// agent (the manager tick, the per-child readers, the sender, the status
// server) is built on, so that shutdown, restart, and health introspection
// are implemented once instead of four times.
package startStop

import (
	"context"
	"time"
)

// FuncStart is launched in its own goroutine by Start. It should block until
// ctx is cancelled (or the work is otherwise done) and return any terminal
// error it encountered.
type FuncStart func(ctx context.Context) error

// FuncStop is called by Stop to ask the running FuncStart to wind down. It
// receives a context bearing the caller's shutdown deadline.
type FuncStop func(ctx context.Context) error

// maxErrorHistory bounds the size of the error ring kept by a runner so a
// long-lived, frequently erroring component cannot leak memory.
const maxErrorHistory = 32

// StartStop is a supervised start/stop/restart lifecycle for a single
// background activity.
type StartStop interface {
	// Start launches the configured FuncStart in a new goroutine and
	// returns immediately. If the runner is already running, the previous
	// instance is stopped (using ctx's deadline) before the new one starts.
	Start(ctx context.Context) error

	// Stop asks the running FuncStart to terminate via FuncStop and waits
	// for it to exit or for ctx to expire. Stop is idempotent: calling it
	// when not running is a no-op that returns nil.
	Stop(ctx context.Context) error

	// Restart is Stop followed by Start.
	Restart(ctx context.Context) error

	// IsRunning reports whether FuncStart is currently executing.
	IsRunning() bool

	// Uptime returns how long the current run has been active, or zero if
	// not running.
	Uptime() time.Duration

	// ErrorsLast returns the most recent error recorded by the runner, or
	// nil if none occurred.
	ErrorsLast() error

	// ErrorsList returns all errors recorded by the runner since it was
	// created, oldest first, bounded to the last maxErrorHistory entries.
	ErrorsList() []error
}

// New creates a StartStop runner around the given start/stop functions.
// Either may be nil: a nil FuncStart records an "invalid start function"
// error when Start is invoked; a nil FuncStop is treated as a successful
// no-op stop.
func New(start FuncStart, stop FuncStop) StartStop {
	return &runner{
		fnStart: start,
		fnStop:  stop,
	}
}
