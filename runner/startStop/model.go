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

package startStop

import (
	"context"
	"errors"
	"sync"
	"time"
)

type runner struct {
	mu sync.Mutex

	fnStart FuncStart
	fnStop  FuncStop

	running bool
	startAt time.Time
	cancel  context.CancelFunc
	done    chan struct{}

	errMu sync.Mutex
	errs  []error
}

func (r *runner) Start(ctx context.Context) error {
	r.mu.Lock()

	if r.running {
		r.mu.Unlock()
		_ = r.Stop(ctx)
		r.mu.Lock()
	}

	if ctx == nil {
		ctx = context.Background()
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	r.cancel = cancel
	r.done = done
	r.running = true
	r.startAt = time.Now()

	fn := r.fnStart
	r.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			r.mu.Lock()
			r.running = false
			r.mu.Unlock()
		}()

		if fn == nil {
			r.addError(errors.New("startStop: invalid start function"))
			return
		}

		if e := fn(runCtx); e != nil {
			r.addError(e)
		}
	}()

	return nil
}

func (r *runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}

	cancel := r.cancel
	done := r.done
	fn := r.fnStop
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var stopErr error
	if fn != nil {
		stopErr = fn(ctx)
		if stopErr != nil {
			r.addError(stopErr)
		}
	}

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	return stopErr
}

func (r *runner) Restart(ctx context.Context) error {
	if e := r.Stop(ctx); e != nil {
		return e
	}
	return r.Start(ctx)
}

func (r *runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *runner) Uptime() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running || r.startAt.IsZero() {
		return 0
	}
	return time.Since(r.startAt)
}

func (r *runner) addError(err error) {
	if err == nil {
		return
	}

	r.errMu.Lock()
	defer r.errMu.Unlock()

	r.errs = append(r.errs, err)
	if len(r.errs) > maxErrorHistory {
		r.errs = r.errs[len(r.errs)-maxErrorHistory:]
	}
}

func (r *runner) ErrorsLast() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()

	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[len(r.errs)-1]
}

func (r *runner) ErrorsList() []error {
	r.errMu.Lock()
	defer r.errMu.Unlock()

	out := make([]error, len(r.errs))
	copy(out, r.errs)
	return out
}
