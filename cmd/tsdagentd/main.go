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

// Command tsdagentd is the host-resident metrics-collection agent: it
// supervises a directory of collector executables, ingests and deduplicates
// the samples they print, and forwards them to a pool of TSD endpoints.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nabbar/tsdagent/collector"
	"github.com/nabbar/tsdagent/config"
	"github.com/nabbar/tsdagent/logging"
	"github.com/nabbar/tsdagent/queue"
	"github.com/nabbar/tsdagent/reader"
	"github.com/nabbar/tsdagent/runner/ticker"
	"github.com/nabbar/tsdagent/sender"
	"github.com/nabbar/tsdagent/status"
	"github.com/nabbar/tsdagent/worker"
)

var (
	flagConfigFile string
	flagVerbose    int
)

func main() {
	root := &cobra.Command{
		Use:          "tsdagentd",
		Short:        "host-resident metrics-collection agent",
		Long:         "tsdagentd supervises collector executables, deduplicates their samples, and forwards them to a time-series database.",
		SilenceUsage: true,
		RunE:         runAgent,
	}

	root.PersistentFlags().StringVarP(&flagConfigFile, "config", "c", "", "path to the configuration file (yaml, json, or toml)")
	root.PersistentFlags().CountVarP(&flagVerbose, "verbose", "v", "increase log verbosity (-v, -vv)")

	if err := root.Execute(); err != nil {
		os.Exit(2)
	}
}

func runAgent(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(flagConfigFile, cmd.PersistentFlags())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logging.Setup(logging.Config{Format: logging.ParseFormat(cfg.LogFormat), Verbose: flagVerbose})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agent := build(cfg)
	agent.start(ctx)

	<-ctx.Done()
	logrus.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	agent.stop(shutdownCtx)

	logrus.Info("shutdown complete")
	return nil
}

// components bundles the agent's four long-running parts plus the shared
// state they operate on, so start/stop ordering lives in one place.
type components struct {
	reader *reader.Reader
	status *status.Server

	managerTick  ticker.Ticker
	senderWorker *worker.Worker
}

func build(cfg *config.Config) *components {
	table := collector.NewTable()
	q := queue.New(cfg.MaxQueueDepth)
	rd := reader.New(reader.Config{
		NamespacePrefix: cfg.NamespacePrefix,
		DedupInterval:   cfg.DedupInterval(),
	}, q)

	mgr := collector.NewManager(collector.ManagerConfig{
		CollectorsRoot:      cfg.CollectorsRoot,
		TickInterval:        cfg.ManagerTick(),
		MaxConcurrentSpawns: int64(cfg.MaxConcurrentSpawns),
	}, table, rd.PrepareChild, rd.Attach)

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	pool := sender.NewPool(cfg.Endpoints(), func(eps []sender.Endpoint) {
		rnd.Shuffle(len(eps), func(i, j int) { eps[i], eps[j] = eps[j], eps[i] })
	})

	var transport sender.Transport
	if cfg.HTTP {
		transport = sender.NewHTTPTransport(cfg.HTTPAPIPath, "http", 10*time.Second)
	} else {
		transport = sender.NewLineTransport(5*time.Second, 5*time.Second)
	}

	snd := sender.New(sender.Config{
		HostTag:           cfg.HostTag,
		MaxBatch:          200,
		ReconnectInterval: cfg.ReconnectInterval(),
	}, q, pool, transport)

	var statusServer *status.Server
	if addr := cfg.StatusAddr(); addr != "" {
		var metrics *status.Metrics
		if cfg.StatusMetricsEnabled {
			metrics = status.NewMetrics(table, q, snd)
		}
		statusServer = status.New(addr, table, metrics)
	}

	managerTick := ticker.New(cfg.ManagerTick(), func(tickCtx context.Context, _ *time.Ticker) error {
		return mgr.Tick(tickCtx)
	})

	return &components{
		reader:       rd,
		status:       statusServer,
		managerTick:  managerTick,
		senderWorker: worker.New("sender", snd.Run, nil),
	}
}

func (c *components) start(ctx context.Context) {
	if err := c.managerTick.Start(ctx); err != nil {
		logrus.WithError(err).Error("failed to start collector manager loop")
	}
	if err := c.senderWorker.Start(ctx); err != nil {
		logrus.WithError(err).Error("failed to start sender")
	}
	if c.status != nil {
		if err := c.status.Start(ctx); err != nil {
			logrus.WithError(err).Error("failed to start status surface")
		}
	}
}

func (c *components) stop(ctx context.Context) {
	_ = c.managerTick.Stop(ctx)
	c.reader.Stop(ctx)
	_ = c.senderWorker.Stop(ctx)

	if c.status != nil {
		_ = c.status.Stop(ctx)
	}
}
