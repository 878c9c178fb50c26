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

// Package reader drains collector child processes' stdout and stderr,
// validates and deduplicates the samples found on stdout, and enqueues the
// survivors onto the outbound queue. Each live child gets its own worker so
// one slow or silent collector cannot starve the others.
package reader

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/nabbar/tsdagent/collector"
	"github.com/nabbar/tsdagent/queue"
	"github.com/nabbar/tsdagent/sample"
	"github.com/nabbar/tsdagent/worker"
	"github.com/sirupsen/logrus"
)

// Config carries the reader's tunables, all sourced from configuration.
type Config struct {
	NamespacePrefix string
	DedupInterval   time.Duration
}

// Reader owns one worker per live collector child, feeding validated,
// deduplicated samples into an outbound queue.
type Reader struct {
	cfg   Config
	queue *queue.Queue

	mu      sync.Mutex
	workers map[string]*worker.Worker
	pipes   map[string]*childPipes
}

type childPipes struct {
	stdout io.ReadCloser
	stderr io.ReadCloser
}

// New builds a Reader that enqueues onto q.
func New(cfg Config, q *queue.Queue) *Reader {
	if cfg.DedupInterval <= 0 {
		cfg.DedupInterval = 10 * time.Minute
	}
	return &Reader{
		cfg:     cfg,
		queue:   q,
		workers: make(map[string]*worker.Worker),
		pipes:   make(map[string]*childPipes),
	}
}

// PrepareChild wires cmd's Stdout and Stderr to pipes the reader will drain
// once the child has been started. It is meant to be passed as a
// collector.PrepareChild hook, called before cmd.Start().
func (rd *Reader) PrepareChild(r *collector.Record, cmd *exec.Cmd) error {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	rd.mu.Lock()
	rd.pipes[r.Name()] = &childPipes{stdout: stdout, stderr: stderr}
	rd.mu.Unlock()
	return nil
}

// Attach starts the reader workers for a freshly started child. It is meant
// to be passed as a collector.OnChild hook, called right after cmd.Start()
// succeeds.
func (rd *Reader) Attach(r *collector.Record, cmd *exec.Cmd) {
	rd.mu.Lock()
	pipes, ok := rd.pipes[r.Name()]
	delete(rd.pipes, r.Name())
	rd.mu.Unlock()

	if !ok {
		return
	}

	w := worker.New(r.Name(), func(ctx context.Context) error {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			rd.drainStdout(r, pipes.stdout)
		}()
		go func() {
			defer wg.Done()
			rd.drainStderr(r, pipes.stderr)
		}()
		wg.Wait()
		return nil
	}, nil)

	rd.mu.Lock()
	rd.workers[r.Name()] = w
	rd.mu.Unlock()

	_ = w.Start(context.Background())
}

// drainStdout reads newline-delimited samples from a child's stdout until
// EOF, validating, prefixing, deduplicating, and enqueuing each one. A
// final unterminated fragment is discarded on EOF, per the collector
// contract: a line is valid only once terminated.
func (rd *Reader) drainStdout(r *collector.Record, rc io.ReadCloser) {
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(func(data []byte, atEOF bool) (int, []byte, error) {
		if atEOF && bytes.IndexByte(data, '\n') < 0 {
			return len(data), nil, nil
		}
		return bufio.ScanLines(data, atEOF)
	})

	for scanner.Scan() {
		rd.ProcessLine(r, scanner.Text())
	}
}

// drainStderr captures diagnostic text verbatim for logging only.
func (rd *Reader) drainStderr(r *collector.Record, rc io.ReadCloser) {
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		logrus.WithField("collector", r.Name()).Debug(scanner.Text())
	}
}

// ProcessLine validates, prefixes, deduplicates, and enqueues a single raw
// line from a collector's stdout, updating the record's counters. It is the
// reusable core of drainStdout, exported so it can be driven directly in
// tests without needing a real child process.
func (rd *Reader) ProcessLine(r *collector.Record, line string) {
	r.RecordLineReceived()

	s, err := sample.Parse(line)
	if err != nil {
		r.RecordLineInvalid()
		logrus.WithField("collector", r.Name()).WithField("line", line).Debug("rejected invalid sample line")
		return
	}

	if rd.cfg.NamespacePrefix != "" {
		s = s.WithMetricPrefix(rd.cfg.NamespacePrefix)
	}

	switch r.Dedup(s.Key(), s.Value, s.Timestamp, rd.cfg.DedupInterval) {
	case collector.DedupSuppress:
		return
	case collector.DedupHeartbeat:
		s = s.WithTimestamp(timeNowUnix())
	}

	rd.queue.Enqueue(s.Line())
	r.RecordLineSent(s.Timestamp)
}

// timeNowUnix is indirected so dedup heartbeat timestamps can be exercised
// deterministically in tests without depending on wall clock precision.
var timeNowUnix = func() int64 {
	return time.Now().Unix()
}

// Stop stops every active per-child worker, waiting up to the context's
// deadline for each to drain.
func (rd *Reader) Stop(ctx context.Context) {
	rd.mu.Lock()
	workers := make([]*worker.Worker, 0, len(rd.workers))
	for _, w := range rd.workers {
		workers = append(workers, w)
	}
	rd.mu.Unlock()

	for _, w := range workers {
		_ = w.Stop(ctx)
	}
}

// Detach stops and forgets the worker for a single collector, e.g. after
// its child has been reaped.
func (rd *Reader) Detach(ctx context.Context, name string) {
	rd.mu.Lock()
	w, ok := rd.workers[name]
	delete(rd.workers, name)
	rd.mu.Unlock()

	if ok {
		_ = w.Stop(ctx)
	}
}
