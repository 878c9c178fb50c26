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

package sample

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse validates one collector output line against the grammar:
//
//	<metric> <timestamp> <value> [<k>=<v>]*
//
// where timestamp parses as a strictly positive integer and value parses as
// an integer or a finite floating-point literal and nothing else. Boolean
// literals, bare identifiers, "NaN", "Infinity" and any other non-numeric
// token are rejected, even though strconv.ParseFloat would otherwise accept
// "NaN"/"Inf" spellings — that leniency is deliberately not carried over
// here.
func Parse(line string) (Sample, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Fields(line)

	if len(fields) < 3 {
		return Sample{}, fmt.Errorf("%w: expected at least 3 fields, got %d", ErrInvalidLine, len(fields))
	}

	metric := fields[0]
	if e := validateMetric(metric); e != nil {
		return Sample{}, e
	}

	ts, e := parseTimestamp(fields[1])
	if e != nil {
		return Sample{}, e
	}

	val, raw, e := parseValue(fields[2])
	if e != nil {
		return Sample{}, e
	}

	tags, e := parseTags(fields[3:])
	if e != nil {
		return Sample{}, e
	}

	sorted, e := canonicalizeTags(tags)
	if e != nil {
		return Sample{}, e
	}

	return Sample{
		Metric:    metric,
		Timestamp: ts,
		Value:     val,
		raw:       raw,
		Tags:      sorted,
	}, nil
}

func parseTimestamp(field string) (int64, error) {
	ts, e := strconv.ParseInt(field, 10, 64)
	if e != nil {
		return 0, fmt.Errorf("%w: timestamp %q is not an integer", ErrInvalidLine, field)
	}
	if ts <= 0 {
		return 0, fmt.Errorf("%w: timestamp %q is not strictly positive", ErrInvalidLine, field)
	}
	return ts, nil
}

// parseValue accepts an integer literal or a finite floating point literal
// and rejects everything else Go's strconv would otherwise parse, namely
// the "nan"/"inf"/"infinity" spellings (in any case) that have no place in
// a numeric metric value.
func parseValue(field string) (value float64, raw string, err error) {
	if i, e := strconv.ParseInt(field, 10, 64); e == nil {
		return float64(i), field, nil
	}

	f, e := strconv.ParseFloat(field, 64)
	if e != nil {
		return 0, "", fmt.Errorf("%w: value %q is not numeric", ErrInvalidLine, field)
	}
	if !isFiniteNumber(f) {
		return 0, "", fmt.Errorf("%w: value %q is not finite", ErrInvalidLine, field)
	}

	return f, field, nil
}

func parseTags(fields []string) ([]Tag, error) {
	if len(fields) == 0 {
		return nil, nil
	}

	tags := make([]Tag, 0, len(fields))
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("%w: malformed tag %q", ErrInvalidLine, f)
		}
		tags = append(tags, Tag{Key: k, Value: v})
	}
	return tags, nil
}
