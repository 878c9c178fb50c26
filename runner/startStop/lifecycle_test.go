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

package startStop_test

import (
	"context"
	"io"
	"sync"
	"time"

	. "github.com/nabbar/tsdagent/runner/startStop"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// Lifecycle exercises Start/Stop/Restart, built directly with New, against
// the three run-loop shapes that worker.Worker wraps in production: a
// blocking loop with no stop function (the sender), a
// dual-goroutine drain with no stop function (a per-child reader), and a
// run/stop pair (the status server).
var _ = Describe("Lifecycle", func() {
	Context("sender-shaped loop (blocks on ctx, no stop func)", func() {
		// Mirrors worker.New("sender", snd.Run, nil): Run blocks until ctx
		// is cancelled, and there is no separate stop function to interrupt it.
		It("starts, reports running, and stops on context cancellation", func() {
			entered := make(chan struct{})
			senderRun := func(ctx context.Context) error {
				close(entered)
				<-ctx.Done()
				return nil
			}

			r := New(senderRun, nil)

			Expect(r.Start(context.Background())).To(Succeed())
			Eventually(entered).Should(BeClosed())
			Expect(r.IsRunning()).To(BeTrue())

			Expect(r.Stop(context.Background())).To(Succeed())
			Expect(r.IsRunning()).To(BeFalse())
		})

		It("is idempotent when Stop is called without a prior Start", func() {
			senderRun := func(ctx context.Context) error { <-ctx.Done(); return nil }
			r := New(senderRun, nil)

			Expect(r.Stop(context.Background())).To(Succeed())
			Expect(r.IsRunning()).To(BeFalse())
		})
	})

	Context("reader-drain-shaped loop (two goroutines joined by WaitGroup, no stop func)", func() {
		// Mirrors Reader.Attach: two goroutines drain stdout/stderr pipes
		// until both pipes close, joined by a sync.WaitGroup; there is no
		// stop function, the loop only ends when the pipes are closed.
		It("runs until both simulated pipes close, with no stop function needed", func() {
			stdout, stdoutW := io.Pipe()
			stderr, stderrW := io.Pipe()

			drain := func(ctx context.Context) error {
				var wg sync.WaitGroup
				wg.Add(2)
				go func() {
					defer wg.Done()
					_, _ = io.Copy(io.Discard, stdout)
				}()
				go func() {
					defer wg.Done()
					_, _ = io.Copy(io.Discard, stderr)
				}()
				wg.Wait()
				return nil
			}

			r := New(drain, nil)
			Expect(r.Start(context.Background())).To(Succeed())
			Eventually(r.IsRunning).Should(BeTrue())

			_ = stdoutW.Close()
			_ = stderrW.Close()

			Eventually(r.IsRunning, time.Second).Should(BeFalse())
		})
	})

	Context("run/stop pair (status server shape)", func() {
		// Mirrors worker.New("status", s.run, s.stop): stop is used to
		// unblock run rather than relying on ctx cancellation alone.
		It("invokes stop to unblock run, and Restart cycles cleanly", func() {
			done := make(chan struct{})
			var stopCalls int
			var mu sync.Mutex

			run := func(ctx context.Context) error {
				<-done
				return nil
			}
			stop := func(ctx context.Context) error {
				mu.Lock()
				stopCalls++
				mu.Unlock()
				close(done)
				return nil
			}

			r := New(run, stop)
			Expect(r.Start(context.Background())).To(Succeed())
			Eventually(r.IsRunning).Should(BeTrue())

			Expect(r.Stop(context.Background())).To(Succeed())
			Expect(r.IsRunning()).To(BeFalse())
			mu.Lock()
			Expect(stopCalls).To(Equal(1))
			mu.Unlock()

			// Restart needs a fresh done channel since the first one is closed.
			done = make(chan struct{})
			Expect(r.Restart(context.Background())).To(Succeed())
			Eventually(r.IsRunning).Should(BeTrue())
			Expect(r.Stop(context.Background())).To(Succeed())
		})
	})
})
