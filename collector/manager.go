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

package collector

import (
	"context"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// ExitDoNotRespawn is the collector contract's exit code meaning "I do not
// apply on this host; do not respawn".
const ExitDoNotRespawn = 13

// backupSuffixes lists filename endings that disqualify an otherwise
// executable file from discovery (editor/package-manager leftovers).
var backupSuffixes = []string{"~", ".bak", ".orig", ".rpmnew", ".rpmsave", ".dpkg-new", ".dpkg-old"}

// ManagerConfig carries the manager's tunables, all sourced from
// configuration.
type ManagerConfig struct {
	CollectorsRoot      string
	TickInterval        time.Duration
	MaxConcurrentSpawns int64
	KillGrace           time.Duration
	MinRespawnBackoff   time.Duration
	Env                 []string
}

// OnChild is invoked once for every live child attached to a record, so the
// reader can register itself against that child's pipes without the
// manager needing to know anything about reading.
type OnChild func(r *Record, cmd *exec.Cmd)

// PrepareChild is invoked on a freshly built *exec.Cmd before it is
// started, so a caller can wire cmd.Stdout/cmd.Stderr (typically via
// cmd.StdoutPipe()/StderrPipe()) ahead of time. Returning an error aborts
// the spawn.
type PrepareChild func(r *Record, cmd *exec.Cmd) error

// Manager discovers collector executables, keeps the shared Table in sync
// with disk, and drives the spawn/respawn/kill-escalation lifecycle for
// every record.
type Manager struct {
	cfg     ManagerConfig
	table   *Table
	sem     *semaphore.Weighted
	prepare PrepareChild
	onNew   OnChild

	rnd *rand.Rand
}

// NewManager builds a Manager over table using cfg. prepare, if non-nil, is
// called on each child before it is started (to wire output pipes).
// onChild, if non-nil, is called synchronously right after a child is
// successfully started (to launch the reader goroutines).
func NewManager(cfg ManagerConfig, table *Table, prepare PrepareChild, onChild OnChild) *Manager {
	if cfg.MaxConcurrentSpawns <= 0 {
		cfg.MaxConcurrentSpawns = 8
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = 5 * time.Second
	}
	if cfg.MinRespawnBackoff <= 0 {
		cfg.MinRespawnBackoff = time.Second
	}

	return &Manager{
		cfg:     cfg,
		table:   table,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrentSpawns),
		prepare: prepare,
		onNew:   onChild,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Tick runs one full manager cycle: rescan the collectors root, spawn
// everything that is due, advance kill escalation for everything overdue,
// and reap any child that has already exited.
func (m *Manager) Tick(ctx context.Context) error {
	if err := m.rescan(); err != nil {
		logrus.WithError(err).Warn("collector rescan failed")
	}
	m.reap()
	m.escalate(ctx)
	m.spawnDue(ctx)
	m.sweepDead()
	return nil
}

// sweepDead removes every record that is both marked dead (its file
// disappeared from disk, or it reported ExitDoNotRespawn) and has no live
// child left to detach. A dead record with a still-running child is kept
// until reap() observes that child's exit, matching the collector record's
// destroy condition: gone from disk *and* any live child has exited.
func (m *Manager) sweepDead() {
	var dead []string

	m.table.Range(func(name string, r *Record) bool {
		if r.IsDead() && !r.HasLiveChild() {
			dead = append(dead, name)
		}
		return true
	})

	for _, name := range dead {
		m.table.Delete(name)
		logrus.WithField("collector", name).Info("collector record destroyed")
	}
}

// rescan enumerates the collectors root and reconciles the table against
// what is found on disk, per the discovery rules of the collector
// contract: new eligible files become records with a staggered first
// spawn, changed mtimes mark the live child for termination, and files
// that disappeared are marked dead.
func (m *Manager) rescan() error {
	seen := make(map[string]struct{})

	err := filepath.WalkDir(m.cfg.CollectorsRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// A file vanishing mid-walk is benign; anything else is logged
			// and the walk continues on a best-effort basis.
			if os.IsNotExist(err) {
				return nil
			}
			logrus.WithError(err).WithField("path", path).Debug("collector scan error")
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !eligible(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Mode()&0111 == 0 {
			return nil
		}

		name := collectorName(m.cfg.CollectorsRoot, path)
		seen[name] = struct{}{}
		m.reconcile(name, path, info.ModTime())
		return nil
	})
	if err != nil {
		return err
	}

	m.table.Range(func(name string, r *Record) bool {
		if _, ok := seen[name]; !ok && !r.IsDead() {
			r.MarkDead()
			logrus.WithField("collector", name).Info("collector removed from disk, marked dead")
		}
		return true
	})

	return nil
}

func (m *Manager) reconcile(name, path string, mtime time.Time) {
	existing, ok := m.table.Get(name)
	if !ok {
		stagger := time.Duration(m.rnd.Int63n(int64(m.cfg.TickInterval) + 1))
		r := NewRecord(name, path, 0, mtime, time.Now().Add(stagger))
		m.table.Put(name, r)
		return
	}

	if mtime.After(existing.Mtime()) {
		existing.Touch(path, existing.Interval(), mtime)
		if existing.HasLiveChild() {
			existing.AdvanceKillState(KillStateSoft, time.Now().Add(m.cfg.KillGrace))
			logrus.WithField("collector", name).Info("collector binary changed, scheduling termination")
		}
	}
}

func eligible(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	for _, suf := range backupSuffixes {
		if strings.HasSuffix(name, suf) {
			return false
		}
	}
	return true
}

func collectorName(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// spawnDue starts every record that has no live child and whose scheduled
// spawn time has passed, throttled by the weighted semaphore so a large
// fleet rescan cannot fork-bomb the host in a single tick.
func (m *Manager) spawnDue(ctx context.Context) {
	now := time.Now()

	m.table.Range(func(_ string, r *Record) bool {
		if !r.DueToSpawn(now) {
			return true
		}
		if !m.sem.TryAcquire(1) {
			return true
		}

		go func(r *Record) {
			defer m.sem.Release(1)
			m.spawn(ctx, r)
		}(r)

		return true
	})
}

func (m *Manager) spawn(ctx context.Context, r *Record) {
	cmd := exec.Command(r.Path())
	cmd.Env = append(os.Environ(), m.cfg.Env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if m.prepare != nil {
		if err := m.prepare(r, cmd); err != nil {
			logrus.WithError(err).WithField("collector", r.Name()).Warn("failed to prepare collector pipes")
			r.ScheduleNextSpawn(time.Now().Add(m.cfg.MinRespawnBackoff))
			return
		}
	}

	if err := cmd.Start(); err != nil {
		logrus.WithError(err).WithField("collector", r.Name()).Warn("failed to start collector")
		r.ScheduleNextSpawn(time.Now().Add(m.cfg.MinRespawnBackoff))
		return
	}

	r.AttachChild(cmd, time.Now())
	logrus.WithField("collector", r.Name()).WithField("pid", cmd.Process.Pid).Info("collector started")

	if m.onNew != nil {
		m.onNew(r, cmd)
	}

	if !r.IsLongLived() {
		r.ScheduleNextSpawn(time.Now().Add(r.Interval()))
	}
}

// reap collects every record whose child has exited, without blocking on
// any child still running.
func (m *Manager) reap() {
	m.table.Range(func(_ string, r *Record) bool {
		cmd := r.Child()
		if cmd == nil || cmd.Process == nil {
			return true
		}

		var ws syscall.WaitStatus
		pid, err := syscall.Wait4(cmd.Process.Pid, &ws, syscall.WNOHANG, nil)
		if err != nil || pid == 0 {
			return true
		}

		r.DetachChild()

		switch {
		case ws.Exited() && ws.ExitStatus() == ExitDoNotRespawn:
			r.MarkDead()
			logrus.WithField("collector", r.Name()).Info("collector reported permanently inapplicable, disabling")
		case ws.Exited() && ws.ExitStatus() == 0:
			logrus.WithField("collector", r.Name()).Debug("collector exited cleanly")
		default:
			logrus.WithField("collector", r.Name()).WithField("status", ws.ExitStatus()).Warn("collector exited with error")
		}

		if r.IsLongLived() && !r.IsDead() {
			r.ScheduleNextSpawn(time.Now().Add(m.cfg.MinRespawnBackoff))
		}

		return true
	})
}

// escalate advances kill state for every record whose child has outlived
// its expected lifetime or was marked for termination by rescan, following
// the soft-then-hard termination ladder.
func (m *Manager) escalate(ctx context.Context) {
	now := time.Now()

	m.table.Range(func(_ string, r *Record) bool {
		cmd := r.Child()
		if cmd == nil || cmd.Process == nil {
			return true
		}

		if r.KillState() == KillStateHealthy {
			if r.Interval() <= 0 {
				return true
			}
			deadline := r.LastSpawn().Add(r.Interval()).Add(m.cfg.KillGrace)
			if now.Before(deadline) {
				return true
			}
			r.AdvanceKillState(KillStateSoft, now.Add(m.cfg.KillGrace))
		}

		if r.NextKill().After(now) {
			return true
		}

		switch r.KillState() {
		case KillStateSoft:
			_ = signalGroup(cmd.Process.Pid, syscall.SIGTERM)
			r.AdvanceKillState(KillStateHard, now.Add(m.cfg.KillGrace))
			logrus.WithField("collector", r.Name()).Warn("sent soft termination to hung collector")
		case KillStateHard:
			if !r.HardKillSent() {
				_ = signalGroup(cmd.Process.Pid, syscall.SIGKILL)
				r.MarkHardKillSent()
				r.AdvanceKillState(KillStateHard, now.Add(m.cfg.KillGrace))
				logrus.WithField("collector", r.Name()).Warn("sent hard termination to hung collector")
				return true
			}
			// Still alive after the hard kill's grace period: give up and
			// detach. The process may survive; it is no longer tracked.
			r.DetachChild()
			logrus.WithField("collector", r.Name()).Error("collector survived hard termination, detaching record")
		}

		return true
	})
}

// signalGroup signals the process group led by pid, so a collector that
// forked helpers of its own does not leave orphans behind.
func signalGroup(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}
