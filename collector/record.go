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

// Package collector owns the per-program bookkeeping (Record), the keyed
// table of records shared across the pipeline, and the manager that keeps
// that table in sync with the filesystem and the live child processes.
package collector

import (
	"os/exec"
	"sync"
	"time"
)

// KillState is the escalation step a hung or terminating child is at.
type KillState int

const (
	// KillStateHealthy means no termination has been requested yet.
	KillStateHealthy KillState = iota
	// KillStateSoft means termination has been requested; no signal has
	// been sent yet. The soft termination signal is sent once NextKill
	// passes.
	KillStateSoft
	// KillStateHard means the soft termination signal has been sent. The
	// hard termination signal follows once NextKill passes (HardKillSent
	// then reports true), and the child is detached one grace period later.
	KillStateHard
)

// dedupEntry is the per-series deduplication state: the last emitted value
// and timestamp, and how many consecutive duplicates have been suppressed
// since then.
type dedupEntry struct {
	lastValue     float64
	lastTimestamp int64
	suppressed    int64
}

// Record is one collector's bookkeeping: identity, schedule, live child
// handle, counters, and deduplication state. All fields are accessed only
// through the methods below, which serialize access with mu, per the
// single-lock-per-record discipline.
type Record struct {
	mu sync.Mutex

	name     string
	path     string
	interval time.Duration
	mtime    time.Time

	cmd       *exec.Cmd
	lastSpawn time.Time
	nextSpawn time.Time

	killState    KillState
	nextKill     time.Time
	hardKillSent bool

	linesReceived int64
	linesSent     int64
	linesInvalid  int64
	lastDatapoint int64

	dead bool

	dedup map[string]*dedupEntry
}

// NewRecord builds a Record for a newly discovered collector executable.
// nextSpawn should already carry the staggered initial spawn time.
func NewRecord(name, path string, interval time.Duration, mtime time.Time, nextSpawn time.Time) *Record {
	return &Record{
		name:      name,
		path:      path,
		interval:  interval,
		mtime:     mtime,
		nextSpawn: nextSpawn,
		dedup:     make(map[string]*dedupEntry),
	}
}

// Name returns the collector's unique identifier.
func (r *Record) Name() string {
	return r.name
}

// Path returns the collector's executable path on disk.
func (r *Record) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// Interval returns the collector's configured interval. Zero means
// long-lived.
func (r *Record) Interval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval
}

// IsLongLived reports whether the collector is spawned once and kept
// running rather than respawned on a period.
func (r *Record) IsLongLived() bool {
	return r.Interval() == 0
}

// Mtime returns the executable's modification time as of the last scan that
// touched this record.
func (r *Record) Mtime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mtime
}

// Touch refreshes the record's path, interval, and mtime after a rescan
// detects the underlying file changed (e.g. an upgrade). It does not affect
// a currently running child; the caller is responsible for marking that
// child for termination separately.
func (r *Record) Touch(path string, interval time.Duration, mtime time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.path = path
	r.interval = interval
	r.mtime = mtime
}

// HasLiveChild reports whether a child process handle is currently attached.
func (r *Record) HasLiveChild() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cmd != nil
}

// AttachChild records a freshly started child and resets kill escalation.
func (r *Record) AttachChild(cmd *exec.Cmd, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmd = cmd
	r.lastSpawn = at
	r.killState = KillStateHealthy
	r.nextKill = time.Time{}
	r.hardKillSent = false
}

// HardKillSent reports whether the hard termination signal has already been
// sent for the current kill escalation episode.
func (r *Record) HardKillSent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hardKillSent
}

// MarkHardKillSent records that the hard termination signal has been sent,
// so escalate does not re-send it every tick while waiting out the grace
// period.
func (r *Record) MarkHardKillSent() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hardKillSent = true
}

// DetachChild clears the child handle, typically after reaping.
func (r *Record) DetachChild() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmd = nil
}

// Child returns the current child handle, or nil if none is live.
func (r *Record) Child() *exec.Cmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cmd
}

// LastSpawn returns when the current or most recent child was started.
func (r *Record) LastSpawn() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSpawn
}

// NextSpawn returns when the record is next due to be spawned.
func (r *Record) NextSpawn() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextSpawn
}

// ScheduleNextSpawn sets when the record should next be spawned.
func (r *Record) ScheduleNextSpawn(at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSpawn = at
}

// DueToSpawn reports whether the record has no live child and its scheduled
// spawn time has passed as of now.
func (r *Record) DueToSpawn(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cmd == nil && !r.dead && !r.nextSpawn.After(now)
}

// KillState returns the current escalation step.
func (r *Record) KillState() KillState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.killState
}

// NextKill returns when the next escalation step is due.
func (r *Record) NextKill() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextKill
}

// AdvanceKillState moves the record to the next escalation step and sets
// the deadline for the step after that.
func (r *Record) AdvanceKillState(next KillState, nextKillAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.killState = next
	r.nextKill = nextKillAt
}

// MarkDead flags the record as permanently disabled: either the executable
// vanished from disk or the collector exited with the "do not respawn"
// convention.
func (r *Record) MarkDead() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dead = true
}

// IsDead reports whether the record is permanently disabled.
func (r *Record) IsDead() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dead
}

// RecordLineReceived increments the received-line counter.
func (r *Record) RecordLineReceived() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.linesReceived++
}

// RecordLineInvalid increments the invalid-line counter.
func (r *Record) RecordLineInvalid() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.linesInvalid++
}

// RecordLineSent increments the sent-line counter and updates the
// last-datapoint timestamp.
func (r *Record) RecordLineSent(timestamp int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.linesSent++
	if timestamp > r.lastDatapoint {
		r.lastDatapoint = timestamp
	}
}

// Counters is a point-in-time copy of a record's countable state, used by
// the status surface so it never holds the record lock while serializing.
type Counters struct {
	Name          string
	Path          string
	Mtime         time.Time
	LastSpawn     time.Time
	KillState     KillState
	NextKill      time.Time
	LinesReceived int64
	LinesSent     int64
	LinesInvalid  int64
	LastDatapoint int64
	Dead          bool
}

// Snapshot returns a consistent copy of the record's observable state.
func (r *Record) Snapshot() Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Counters{
		Name:          r.name,
		Path:          r.path,
		Mtime:         r.mtime,
		LastSpawn:     r.lastSpawn,
		KillState:     r.killState,
		NextKill:      r.nextKill,
		LinesReceived: r.linesReceived,
		LinesSent:     r.linesSent,
		LinesInvalid:  r.linesInvalid,
		LastDatapoint: r.lastDatapoint,
		Dead:          r.dead,
	}
}
