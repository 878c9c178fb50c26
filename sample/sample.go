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

// Package sample implements the atomic datum of the collection pipeline: one
// validated text line bearing a metric name, a timestamp, a numeric value,
// and zero or more tag pairs.
//
// A Sample is either fully valid or rejected whole: there is no partially
// constructed Sample. Once constructed, a Sample is immutable.
package sample

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidLine is wrapped by every rejection reason returned by Parse, so
// callers that only care about "valid or not" can use errors.Is.
var ErrInvalidLine = errors.New("sample: invalid line")

// Tag is one key=value pair. Neither side may be empty or contain
// whitespace.
type Tag struct {
	Key   string
	Value string
}

// Sample is one validated metric observation.
type Sample struct {
	Metric    string
	Timestamp int64
	Value     float64
	// raw preserves the literal value text (e.g. "12" vs "12.0") so
	// re-serialization round-trips byte for byte when the source was
	// already well-formed.
	raw  string
	Tags []Tag
}

// New validates and constructs a Sample directly from typed fields, sorting
// tags into canonical order, for callers that build a sample from values
// rather than by parsing a collector's stdout line.
func New(metric string, timestamp int64, value float64, tags ...Tag) (Sample, error) {
	if e := validateMetric(metric); e != nil {
		return Sample{}, e
	}
	if timestamp <= 0 {
		return Sample{}, fmt.Errorf("%w: non-positive timestamp %d", ErrInvalidLine, timestamp)
	}
	if !isFiniteNumber(value) {
		return Sample{}, fmt.Errorf("%w: non-finite value", ErrInvalidLine)
	}

	sorted, e := canonicalizeTags(tags)
	if e != nil {
		return Sample{}, e
	}

	return Sample{
		Metric:    metric,
		Timestamp: timestamp,
		Value:     value,
		raw:       formatValue(value),
		Tags:      sorted,
	}, nil
}

// Key returns the deduplication/series key: metric name plus the
// canonical (sorted, duplicate-free) tag set, joined as "metric k1=v1 k2=v2".
func (s Sample) Key() string {
	var b strings.Builder
	b.WriteString(s.Metric)
	for _, t := range s.Tags {
		b.WriteByte(' ')
		b.WriteString(t.Key)
		b.WriteByte('=')
		b.WriteString(t.Value)
	}
	return b.String()
}

// WithTimestamp returns a copy of the sample carrying a new timestamp. Used
// by dedup heartbeats, which re-emit the last value under the current time
// rather than the originally suppressed one.
func (s Sample) WithTimestamp(ts int64) Sample {
	s2 := s
	s2.Timestamp = ts
	return s2
}

// HasTag reports whether the sample already carries a tag with this key.
func (s Sample) HasTag(key string) bool {
	for _, t := range s.Tags {
		if t.Key == key {
			return true
		}
	}
	return false
}

// WithTag returns a copy of the sample with the given tag appended and the
// tag set re-sorted. It is a no-op (returns s unchanged) if the key already
// exists, matching the sender's "unless the sample already carries a host=
// tag" host-tag rule.
func (s Sample) WithTag(key, value string) Sample {
	if s.HasTag(key) {
		return s
	}

	s2 := s
	s2.Tags = append(append([]Tag{}, s.Tags...), Tag{Key: key, Value: value})
	sort.Slice(s2.Tags, func(i, j int) bool { return s2.Tags[i].Key < s2.Tags[j].Key })
	return s2
}

// WithMetricPrefix returns a copy of the sample with prefix concatenated
// ahead of the metric name. The prefix is opaque: no validation beyond the
// caller having already checked it is non-empty.
func (s Sample) WithMetricPrefix(prefix string) Sample {
	if prefix == "" {
		return s
	}
	s2 := s
	s2.Metric = prefix + s.Metric
	return s2
}

// Line renders the sample using the TSD line protocol:
// "put <metric> <timestamp> <value> <k1>=<v1> <k2>=<v2>".
func (s Sample) Line() string {
	var b strings.Builder
	b.WriteString("put ")
	b.WriteString(s.Metric)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(s.Timestamp, 10))
	b.WriteByte(' ')
	b.WriteString(s.valueText())
	for _, t := range s.Tags {
		b.WriteByte(' ')
		b.WriteString(t.Key)
		b.WriteByte('=')
		b.WriteString(t.Value)
	}
	return b.String()
}

func (s Sample) valueText() string {
	if s.raw != "" {
		return s.raw
	}
	return formatValue(s.Value)
}

func formatValue(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func isFiniteNumber(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func validateMetric(metric string) error {
	if metric == "" {
		return fmt.Errorf("%w: empty metric", ErrInvalidLine)
	}
	if strings.ContainsAny(metric, " \t\r\n") {
		return fmt.Errorf("%w: metric %q contains whitespace", ErrInvalidLine, metric)
	}
	return nil
}

func canonicalizeTags(tags []Tag) ([]Tag, error) {
	if len(tags) == 0 {
		return nil, nil
	}

	seen := make(map[string]struct{}, len(tags))
	out := make([]Tag, 0, len(tags))

	for _, t := range tags {
		if t.Key == "" || t.Value == "" {
			return nil, fmt.Errorf("%w: empty tag key or value", ErrInvalidLine)
		}
		if strings.ContainsAny(t.Key, " \t\r\n") || strings.ContainsAny(t.Value, " \t\r\n") {
			return nil, fmt.Errorf("%w: tag %q=%q contains whitespace", ErrInvalidLine, t.Key, t.Value)
		}
		if _, dup := seen[t.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate tag key %q", ErrInvalidLine, t.Key)
		}
		seen[t.Key] = struct{}{}
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
