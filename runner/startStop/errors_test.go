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
	"errors"
	"sync/atomic"
	"time"

	. "github.com/nabbar/tsdagent/runner/startStop"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/tsdagent/worker"
)

// Error Handling covers how the runner captures and reports errors from
// start/stop functions, plus the nil-function defensive paths that New's
// own doc comment promises. Panic recovery is covered separately below
// through worker.New, since raw StartStop has no recover() of its own --
// only the Worker wrapper that every production component goes through does.
var _ = Describe("Error Handling", func() {
	Context("Start errors", func() {
		It("should capture error from start function", func() {
			x, n := context.WithTimeout(context.Background(), 5*time.Second)
			defer n()

			expectedErr := errors.New("start failed")

			start := func(ctx context.Context) error {
				return expectedErr
			}
			stop := func(ctx context.Context) error { return nil }

			runner := New(start, stop)
			err := runner.Start(x)
			Expect(err).ToNot(HaveOccurred())

			Eventually(func() error {
				return runner.ErrorsLast()
			}, time.Second).Should(MatchError(expectedErr))

			errs := runner.ErrorsList()
			Expect(errs).ToNot(BeEmpty())
			Expect(errs).To(ContainElement(MatchError(expectedErr)))
		})

		It("should handle nil start function", func() {
			x, n := context.WithTimeout(context.Background(), 5*time.Second)
			defer n()

			stop := func(ctx context.Context) error { return nil }

			runner := New(nil, stop)
			err := runner.Start(x)
			Expect(err).ToNot(HaveOccurred())

			Eventually(func() error {
				return runner.ErrorsLast()
			}, time.Second).Should(HaveOccurred())
			Expect(runner.ErrorsLast().Error()).To(ContainSubstring("invalid start function"))
		})
	})

	Context("Stop errors", func() {
		It("should handle error from stop function", func() {
			x, n := context.WithTimeout(context.Background(), 5*time.Second)
			defer n()

			expectedErr := errors.New("stop failed")
			var running = new(atomic.Bool)

			start := func(c context.Context) error {
				running.Store(true)
				<-c.Done()
				running.Store(false)
				return nil
			}
			stop := func(c context.Context) error {
				return expectedErr
			}

			runner := New(start, stop)
			Expect(runner.Start(x)).ToNot(HaveOccurred())

			Eventually(func() bool {
				return running.Load() && runner.IsRunning()
			}, time.Second).Should(BeTrue())

			Expect(runner.Stop(x)).To(MatchError(expectedErr))

			Eventually(func() error {
				return runner.ErrorsLast()
			}, time.Second).Should(MatchError(expectedErr))
		})

		It("should handle nil stop function", func() {
			x, n := context.WithTimeout(context.Background(), 5*time.Second)
			defer n()

			var running = new(atomic.Bool)

			start := func(c context.Context) error {
				running.Store(true)
				<-c.Done()
				running.Store(false)
				return nil
			}

			runner := New(start, nil)
			Expect(runner.Start(x)).ToNot(HaveOccurred())

			Eventually(func() bool {
				return running.Load() && runner.IsRunning()
			}, time.Second).Should(BeTrue())

			Expect(runner.Stop(x)).ToNot(HaveOccurred())
			Expect(runner.ErrorsLast()).To(BeNil())
		})
	})

	Context("Error tracking", func() {
		It("should track multiple errors across restarts", func() {
			x, n := context.WithTimeout(context.Background(), 5*time.Second)
			defer n()

			err1 := errors.New("error 1")
			err2 := errors.New("error 2")
			var count = new(atomic.Uint32)

			start := func(ctx context.Context) error {
				count.Add(1)
				if count.Load() == 1 {
					return err1
				}
				return err2
			}
			stop := func(ctx context.Context) error { return nil }

			runner := New(start, stop)

			_ = runner.Start(x)
			Eventually(func() error { return runner.ErrorsLast() }, time.Second).Should(MatchError(err1))
			Expect(runner.ErrorsList()).To(HaveLen(1))

			_ = runner.Start(x)
			Eventually(func() error { return runner.ErrorsLast() }, time.Second).Should(MatchError(err2))
		})

		It("should provide the full error history via ErrorsList", func() {
			x, n := context.WithTimeout(context.Background(), 5*time.Second)
			defer n()

			err1 := errors.New("test error")
			start := func(ctx context.Context) error { return err1 }
			stop := func(ctx context.Context) error { return nil }

			runner := New(start, stop)
			_ = runner.Start(x)

			Eventually(func() []error { return runner.ErrorsList() }, time.Second).ShouldNot(BeEmpty())
		})
	})

	Context("Panic recovery via worker.Worker", func() {
		// Every production component goes through worker.New, not raw
		// startStop.New -- this is where the panic recovery the other
		// scenarios in this package cannot reach actually lives.
		It("recovers a panic in a sender-shaped run loop and records it as an error", func() {
			x, n := context.WithTimeout(context.Background(), 5*time.Second)
			defer n()

			w := worker.New("sender", func(ctx context.Context) error {
				panic("sender exploded")
			}, nil)

			Expect(w.Start(x)).ToNot(HaveOccurred())

			Eventually(func() error {
				return w.ErrorsLast()
			}, time.Second).Should(HaveOccurred())
			Expect(w.ErrorsLast().Error()).To(ContainSubstring("recovered panic"))
			Expect(w.ErrorsLast().Error()).To(ContainSubstring("sender exploded"))
			Eventually(w.IsRunning, time.Second).Should(BeFalse())
		})

		It("recovers a panic in a reader-drain-shaped run loop without taking down the worker", func() {
			x, n := context.WithTimeout(context.Background(), 5*time.Second)
			defer n()

			w := worker.New("child-proc-1", func(ctx context.Context) error {
				var lines []string
				_ = lines[5] // out-of-range index, mirrors a malformed-line bug in a drain goroutine
				return nil
			}, nil)

			Expect(w.Start(x)).ToNot(HaveOccurred())

			Eventually(func() error {
				return w.ErrorsLast()
			}, time.Second).Should(HaveOccurred())
			Expect(w.ErrorsLast().Error()).To(ContainSubstring("recovered panic"))
		})
	})
})
