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

// Package status serves the agent's outward-facing HTTP surface: a JSON
// snapshot of every collector record, a Prometheus scrape endpoint for the
// pipeline's own health, and a liveness probe.
package status

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/nabbar/tsdagent/collector"
	"github.com/nabbar/tsdagent/worker"
)

// Server is the gin-routed HTTP status surface, run under the shared
// worker lifecycle like the sender and the reader's per-child loops.
type Server struct {
	addr       string
	table      *collector.Table
	metrics    *Metrics
	httpServer *http.Server
	w          *worker.Worker
}

// New builds a Server listening on addr (host:port). metrics may be nil,
// in which case /metrics responds 404 — status_metrics_enabled controls
// this at the call site.
func New(addr string, table *collector.Table, metrics *Metrics) *Server {
	s := &Server{addr: addr, table: table, metrics: metrics}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/status", s.handleStatus)
	engine.GET("/healthz", s.handleHealthz)
	if metrics != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))
	}

	s.httpServer = &http.Server{Addr: addr, Handler: engine}
	s.w = worker.New("status", s.run, s.stop)
	return s
}

func (s *Server) run(_ context.Context) error {
	logrus.WithField("addr", s.addr).Info("status surface listening")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Start launches the status surface. Listen errors surface through the
// worker's error list rather than blocking the caller.
func (s *Server) Start(ctx context.Context) error {
	return s.w.Start(ctx)
}

// Stop shuts the HTTP listener down within ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	return s.w.Stop(ctx)
}

// Worker exposes the underlying lifecycle worker, so main can report its
// uptime and error history alongside the other three components.
func (s *Server) Worker() *worker.Worker {
	return s.w
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.table.Snapshot())
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.Status(http.StatusOK)
}

// WaitListening polls until addr is accepting connections or the deadline
// elapses, so a test driving a Server started in the background knows when
// it's safe to issue requests.
func WaitListening(addr string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			_ = conn.Close()
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}
