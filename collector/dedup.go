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

import "time"

// DedupDecision tells the reader what to do with a sample after consulting
// a collector's deduplication state.
type DedupDecision int

const (
	// DedupEmit means the sample should be forwarded as-is.
	DedupEmit DedupDecision = iota
	// DedupSuppress means the sample is a duplicate within the window and
	// must not be forwarded.
	DedupSuppress
	// DedupHeartbeat means the sample is a duplicate, but the suppression
	// window has elapsed: forward it with the current timestamp to prove
	// the series is still alive.
	DedupHeartbeat
)

// Dedup consults and updates the record's per-series suppression state for
// one accepted sample, identified by key (metric plus canonical tags).
// window is the configured dedup_interval; now is the sample's timestamp
// expressed as unix seconds.
func (r *Record) Dedup(key string, value float64, now int64, window time.Duration) DedupDecision {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.dedup[key]
	if !ok {
		r.dedup[key] = &dedupEntry{lastValue: value, lastTimestamp: now}
		return DedupEmit
	}

	if entry.lastValue != value {
		entry.lastValue = value
		entry.lastTimestamp = now
		entry.suppressed = 0
		return DedupEmit
	}

	elapsed := time.Duration(now-entry.lastTimestamp) * time.Second
	if elapsed > window {
		entry.lastTimestamp = now
		entry.suppressed = 0
		return DedupHeartbeat
	}

	entry.suppressed++
	return DedupSuppress
}

// SuppressedCount returns how many consecutive duplicates have been
// suppressed for key since the last emission, for diagnostics.
func (r *Record) SuppressedCount(key string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.dedup[key]; ok {
		return e.suppressed
	}
	return 0
}
