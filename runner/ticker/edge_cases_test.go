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
	"sync/atomic"
	"time"

	. "github.com/nabbar/tsdagent/runner/ticker"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// Edge Cases covers the configuration and timing corners a misconfigured
// cfg.ManagerTick() (or a status-server interval) could hit: a zero or
// negative duration from a bad config file, a rescan function that runs
// long, and starting against an already-cancelled context.
var _ = Describe("Edge Cases", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 3*time.Second)
	})

	AfterEach(func() {
		cancel()
	})

	Context("duration clamping", func() {
		It("clamps a zero duration up to the minimum interval instead of busy-looping", func() {
			var ticks atomic.Uint32
			tick := New(0, func(tickCtx context.Context, _ *time.Ticker) error {
				ticks.Add(1)
				return nil
			})

			Expect(tick.Start(ctx)).ToNot(HaveOccurred())
			Eventually(ticks.Load, time.Second).Should(BeNumerically(">=", 1))
			Expect(tick.Stop(ctx)).ToNot(HaveOccurred())
		})

		It("clamps a negative duration the same way", func() {
			tick := New(-1*time.Second, func(tickCtx context.Context, _ *time.Ticker) error { return nil })

			Expect(tick.Start(ctx)).ToNot(HaveOccurred())
			Expect(tick.IsRunning()).To(BeTrue())
			Expect(tick.Stop(ctx)).ToNot(HaveOccurred())
		})

		It("does not fire within a long interval such as an hourly sweep", func() {
			var ticks atomic.Uint32
			tick := New(time.Hour, func(tickCtx context.Context, _ *time.Ticker) error {
				ticks.Add(1)
				return nil
			})

			Expect(tick.Start(ctx)).ToNot(HaveOccurred())
			time.Sleep(50 * time.Millisecond)
			Expect(ticks.Load()).To(Equal(uint32(0)))
			Expect(tick.Stop(ctx)).ToNot(HaveOccurred())
		})
	})

	Context("a rescan that runs longer than the tick interval", func() {
		It("keeps running and still ticks again once the slow rescan returns", func() {
			var ticks atomic.Uint32
			tick := New(20*time.Millisecond, func(tickCtx context.Context, _ *time.Ticker) error {
				ticks.Add(1)
				time.Sleep(50 * time.Millisecond)
				return nil
			})

			Expect(tick.Start(ctx)).ToNot(HaveOccurred())
			time.Sleep(150 * time.Millisecond)

			Expect(tick.IsRunning()).To(BeTrue())
			Expect(ticks.Load()).To(BeNumerically(">=", 1))
			Expect(tick.Stop(ctx)).ToNot(HaveOccurred())
		})

		It("unblocks a rescan waiting on ctx.Done when the ticker is stopped", func() {
			unblocked := make(chan struct{})
			tick := New(10*time.Millisecond, func(tickCtx context.Context, _ *time.Ticker) error {
				<-tickCtx.Done()
				close(unblocked)
				return tickCtx.Err()
			})

			runCtx, runCancel := context.WithCancel(ctx)
			defer runCancel()

			Expect(tick.Start(runCtx)).ToNot(HaveOccurred())
			time.Sleep(20 * time.Millisecond)
			runCancel()

			Eventually(unblocked, time.Second).Should(BeClosed())
			Eventually(tick.IsRunning, time.Second).Should(BeFalse())
		})
	})

	Context("already-expired context on Start", func() {
		It("starts but stops almost immediately without ticking", func() {
			tick := New(10*time.Millisecond, func(tickCtx context.Context, _ *time.Ticker) error { return nil })

			expiredCtx, expiredCancel := context.WithCancel(ctx)
			expiredCancel()

			Expect(tick.Start(expiredCtx)).ToNot(HaveOccurred())
			Eventually(tick.IsRunning, 200*time.Millisecond).Should(BeFalse())
		})
	})

	Context("rapid start/stop/restart cycles", func() {
		It("leaves the ticker in a consistent state after several cycles", func() {
			tick := New(10*time.Millisecond, func(tickCtx context.Context, _ *time.Ticker) error { return nil })

			for i := 0; i < 5; i++ {
				Expect(tick.Start(ctx)).ToNot(HaveOccurred())
				time.Sleep(5 * time.Millisecond)
				Expect(tick.Stop(ctx)).ToNot(HaveOccurred())
			}

			Expect(tick.IsRunning()).To(BeFalse())
			Expect(tick.Uptime()).To(BeZero())
		})
	})
})
