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

package ticker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	. "github.com/nabbar/tsdagent/runner/ticker"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// Error Handling covers the one behavior that sets a ticker apart from a
// plain startStop runner: a failed rescan must not take the manager's tick
// loop down, since the next tick should still get a chance to recover
// (a transient error.New("walk /var/run/tsdagent: permission denied") from
// rescan should not turn into a manager that stops scanning forever).
var _ = Describe("Error Handling", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	})

	AfterEach(func() {
		cancel()
	})

	Context("a failing rescan", func() {
		It("records the error but keeps ticking", func() {
			rescanErr := errors.New("rescan: walk /var/run/tsdagent: permission denied")
			var ticks atomic.Uint32

			tick := New(15*time.Millisecond, func(tickCtx context.Context, _ *time.Ticker) error {
				ticks.Add(1)
				return rescanErr
			})

			Expect(tick.Start(ctx)).ToNot(HaveOccurred())

			Eventually(func() error { return tick.ErrorsLast() }, time.Second).Should(MatchError(rescanErr))
			Eventually(ticks.Load, time.Second).Should(BeNumerically(">=", 3))
			Expect(tick.IsRunning()).To(BeTrue())

			Expect(tick.Stop(ctx)).ToNot(HaveOccurred())
		})

		It("accumulates the bounded history across several bad ticks", func() {
			tick := New(10*time.Millisecond, func(tickCtx context.Context, _ *time.Ticker) error {
				return errors.New("rescan failed")
			})

			Expect(tick.Start(ctx)).ToNot(HaveOccurred())
			Eventually(func() []error { return tick.ErrorsList() }, time.Second).ShouldNot(BeEmpty())

			time.Sleep(100 * time.Millisecond)
			Expect(tick.Stop(ctx)).ToNot(HaveOccurred())

			Expect(len(tick.ErrorsList())).To(BeNumerically(">=", 2))
		})

		It("recovers once a later tick succeeds again, without clearing the history", func() {
			var calls atomic.Uint32
			tick := New(10*time.Millisecond, func(tickCtx context.Context, _ *time.Ticker) error {
				if calls.Add(1) == 1 {
					return errors.New("first rescan failed")
				}
				return nil
			})

			Expect(tick.Start(ctx)).ToNot(HaveOccurred())
			Eventually(calls.Load, time.Second).Should(BeNumerically(">=", 2))
			Expect(tick.IsRunning()).To(BeTrue())

			Expect(tick.Stop(ctx)).ToNot(HaveOccurred())
		})
	})

	Context("Start clears the error history", func() {
		It("gives a fresh error list on a new Start", func() {
			tick := New(10*time.Millisecond, func(tickCtx context.Context, _ *time.Ticker) error {
				return errors.New("tick error")
			})

			Expect(tick.Start(ctx)).ToNot(HaveOccurred())
			Eventually(func() error { return tick.ErrorsLast() }, time.Second).Should(HaveOccurred())
			Expect(tick.Stop(ctx)).ToNot(HaveOccurred())

			Expect(tick.Start(ctx)).ToNot(HaveOccurred())
			Expect(tick.ErrorsList()).To(BeEmpty())
			_ = tick.Stop(ctx)
		})
	})

	Context("nil tick function", func() {
		It("never records an error and never ticks into a panic", func() {
			tick := New(10*time.Millisecond, nil)

			Expect(tick.Start(ctx)).ToNot(HaveOccurred())
			time.Sleep(30 * time.Millisecond)

			Expect(tick.ErrorsLast()).To(BeNil())
			Expect(tick.IsRunning()).To(BeTrue())

			Expect(tick.Stop(ctx)).ToNot(HaveOccurred())
		})
	})

	Context("no errors", func() {
		It("returns nil/empty from ErrorsLast/ErrorsList", func() {
			tick := New(250*time.Millisecond, func(tickCtx context.Context, _ *time.Ticker) error { return nil })

			Expect(tick.ErrorsLast()).To(BeNil())
			Expect(tick.ErrorsList()).To(BeEmpty())
		})
	})
})
