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
	"sort"

	libatm "github.com/nabbar/tsdagent/atomic"
)

// Table is the keyed set of collector records shared by the manager,
// reader, sender, and status surface. It is backed by a lock-free typed
// map so reads from the status surface never contend with the manager's
// rescan or the reader's counter updates; mutation of an individual
// record's fields is still serialized by that record's own mutex.
type Table struct {
	m libatm.MapTyped[string, *Record]
}

// NewTable builds an empty Table.
func NewTable() *Table {
	return &Table{m: libatm.NewMapTyped[string, *Record]()}
}

// Get returns the record named name, if present.
func (t *Table) Get(name string) (*Record, bool) {
	return t.m.Load(name)
}

// Put inserts or replaces the record named name.
func (t *Table) Put(name string, r *Record) {
	t.m.Store(name, r)
}

// Delete removes the record named name.
func (t *Table) Delete(name string) {
	t.m.Delete(name)
}

// Range calls f for every record in the table, in unspecified order. f
// should return false to stop early.
func (t *Table) Range(f func(name string, r *Record) bool) {
	t.m.Range(f)
}

// Names returns every record name currently in the table, sorted, so status
// snapshots are stable across calls with unchanged contents.
func (t *Table) Names() []string {
	var names []string
	t.m.Range(func(k string, _ *Record) bool {
		names = append(names, k)
		return true
	})
	sort.Strings(names)
	return names
}

// Snapshot returns a Counters copy for every record, sorted by name.
func (t *Table) Snapshot() []Counters {
	names := t.Names()
	out := make([]Counters, 0, len(names))
	for _, n := range names {
		if r, ok := t.Get(n); ok {
			out = append(out, r.Snapshot())
		}
	}
	return out
}

// Totals sums the per-record line counters across the whole table, for the
// agent's self-observability gauges.
func (t *Table) Totals() (received, sent, invalid int64) {
	t.Range(func(_ string, r *Record) bool {
		c := r.Snapshot()
		received += c.LinesReceived
		sent += c.LinesSent
		invalid += c.LinesInvalid
		return true
	})
	return
}
