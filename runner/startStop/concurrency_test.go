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
	"sync"
	"sync/atomic"
	"time"

	. "github.com/nabbar/tsdagent/runner/startStop"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// Concurrency covers the one access pattern this package actually sees in
// production: the status server's HTTP handler reads IsRunning/Uptime/
// ErrorsLast/ErrorsList on every component's runner while the manager tick,
// the sender loop, and the reader workers keep calling Start/Stop/Restart on
// their own. Run with the race detector to be meaningful.
var _ = Describe("Concurrency", func() {
	Context("status-surface reads against a running loop", func() {
		It("serves concurrent IsRunning/Uptime/ErrorsLast/ErrorsList reads without racing", func() {
			x, n := context.WithTimeout(context.Background(), 5*time.Second)
			defer n()

			var running atomic.Bool
			start := func(c context.Context) error {
				running.Store(true)
				<-c.Done()
				running.Store(false)
				return nil
			}
			stop := func(c context.Context) error { return nil }

			runner := New(start, stop)
			Expect(runner.Start(x)).ToNot(HaveOccurred())
			Eventually(func() bool {
				return running.Load() && runner.IsRunning()
			}, time.Second).Should(BeTrue())
			time.Sleep(20 * time.Millisecond)

			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = runner.IsRunning()
					_ = runner.Uptime()
					_ = runner.ErrorsLast()
					_ = runner.ErrorsList()
				}()
			}
			wg.Wait()

			_ = runner.Stop(x)
		})
	})

	Context("concurrent lifecycle calls", func() {
		It("handles concurrent Start calls safely, mirroring a flapping manager tick", func() {
			x, n := context.WithTimeout(context.Background(), 5*time.Second)
			defer n()

			var startCount atomic.Int32
			start := func(c context.Context) error {
				startCount.Add(1)
				<-c.Done()
				return nil
			}
			stop := func(c context.Context) error { return nil }

			runner := New(start, stop)

			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func(idx int) {
					defer wg.Done()
					time.Sleep(time.Duration(idx) * time.Millisecond)
					_ = runner.Start(x)
				}(i)
			}
			wg.Wait()

			Eventually(startCount.Load, 2*time.Second, 10*time.Millisecond).Should(BeNumerically("==", 10))
			_ = runner.Stop(x)
		})

		It("handles concurrent Stop calls safely, mirroring overlapping shutdown signals", func() {
			x, n := context.WithTimeout(context.Background(), 5*time.Second)
			defer n()

			var stopCount atomic.Int32
			var running atomic.Bool
			start := func(c context.Context) error {
				running.Store(true)
				<-c.Done()
				running.Store(false)
				return nil
			}
			stop := func(c context.Context) error {
				stopCount.Add(1)
				return nil
			}

			runner := New(start, stop)
			Expect(runner.Start(x)).ToNot(HaveOccurred())
			Eventually(func() bool {
				return running.Load() && runner.IsRunning()
			}, time.Second).Should(BeTrue())

			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = runner.Stop(x)
				}()
			}
			wg.Wait()

			Eventually(runner.IsRunning, time.Second).Should(BeFalse())
			Expect(stopCount.Load()).To(BeNumerically(">=", 1))
		})

		It("handles concurrent Restart calls safely", func() {
			x, n := context.WithTimeout(context.Background(), 10*time.Second)
			defer n()

			var generation atomic.Int32
			var running atomic.Bool
			start := func(c context.Context) error {
				generation.Add(1)
				running.Store(true)
				<-c.Done()
				running.Store(false)
				return nil
			}
			stop := func(c context.Context) error { return nil }

			runner := New(start, stop)
			Expect(runner.Start(x)).ToNot(HaveOccurred())
			Eventually(func() bool {
				return running.Load() && runner.IsRunning()
			}, time.Second).Should(BeTrue())

			initialGen := generation.Load()

			var wg sync.WaitGroup
			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = runner.Restart(x)
				}()
			}
			wg.Wait()

			Eventually(generation.Load, time.Second).Should(BeNumerically(">", initialGen))
			_ = runner.Stop(x)
		})

		It("handles rapid Start/Stop cycles, mirroring a flapping collector record", func() {
			x, n := context.WithTimeout(context.Background(), 5*time.Second)
			defer n()

			var generation atomic.Int32
			start := func(c context.Context) error {
				generation.Add(1)
				<-c.Done()
				return nil
			}

			runner := New(start, func(c context.Context) error { return nil })

			for i := 0; i < 5; i++ {
				_ = runner.Start(x)
				time.Sleep(20 * time.Millisecond)
				_ = runner.Stop(x)
				time.Sleep(20 * time.Millisecond)
			}

			Expect(generation.Load()).To(BeNumerically(">=", 1))
			Eventually(runner.IsRunning, time.Second).Should(BeFalse())
		})
	})
})
