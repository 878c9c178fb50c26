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

package status

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nabbar/tsdagent/collector"
	"github.com/nabbar/tsdagent/queue"
	"github.com/nabbar/tsdagent/sender"
)

// Metrics exposes the pipeline's own operational counters — not the
// collected samples themselves — as Prometheus gauges, pulled fresh on
// every scrape from the table, queue, and sender rather than pushed
// incrementally from the hot path.
type Metrics struct {
	registry *prometheus.Registry
}

// NewMetrics builds a self-observability registry backed by table, q, and
// snd. Any of the three may be nil if that component isn't wired yet; the
// corresponding gauges simply report zero.
func NewMetrics(table *collector.Table, q *queue.Queue, snd *sender.Sender) *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tsdagent_lines_received_total",
		Help: "Lines received from collector stdout across all collectors.",
	}, func() float64 {
		if table == nil {
			return 0
		}
		received, _, _ := table.Totals()
		return float64(received)
	}))

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tsdagent_lines_invalid_total",
		Help: "Lines rejected by grammar or numeric validation.",
	}, func() float64 {
		if table == nil {
			return 0
		}
		_, _, invalid := table.Totals()
		return float64(invalid)
	}))

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tsdagent_lines_sent_total",
		Help: "Lines enqueued for delivery after dedup.",
	}, func() float64 {
		if table == nil {
			return 0
		}
		_, sent, _ := table.Totals()
		return float64(sent)
	}))

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tsdagent_queue_depth",
		Help: "Current depth of the outbound delivery queue.",
	}, func() float64 {
		if q == nil {
			return 0
		}
		return float64(q.Depth())
	}))

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tsdagent_queue_dropped_total",
		Help: "Samples dropped because the outbound queue was full.",
	}, func() float64 {
		if q == nil {
			return 0
		}
		return float64(q.Dropped())
	}))

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tsdagent_sends_delivered_total",
		Help: "Samples successfully delivered to a TSD endpoint.",
	}, func() float64 {
		if snd == nil {
			return 0
		}
		return float64(snd.Stats().Delivered)
	}))

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tsdagent_sends_failed_total",
		Help: "Samples requeued after a transport failure.",
	}, func() float64 {
		if snd == nil {
			return 0
		}
		return float64(snd.Stats().Failed)
	}))

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tsdagent_sends_rejected_total",
		Help: "Samples permanently dropped after a 4xx response.",
	}, func() float64 {
		if snd == nil {
			return 0
		}
		return float64(snd.Stats().Rejected)
	}))

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tsdagent_blacklist_events_total",
		Help: "Endpoint blacklist events triggered by transport failures.",
	}, func() float64 {
		if snd == nil {
			return 0
		}
		return float64(snd.Stats().BlacklistEvents)
	}))

	return &Metrics{registry: reg}
}

// Registry returns the underlying Prometheus registry, for wiring into a
// promhttp handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
