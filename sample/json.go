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

import "encoding/json"

// JSON is the wire shape POSTed to a TSD's HTTP batch API:
// [{"metric":...,"timestamp":...,"value":...,"tags":{...}}, ...].
type JSON struct {
	Metric    string            `json:"metric"`
	Timestamp int64             `json:"timestamp"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// MarshalJSON returns the HTTP batch representation of the sample.
func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.toWire())
}

func (s Sample) toWire() JSON {
	j := JSON{Metric: s.Metric, Timestamp: s.Timestamp, Value: s.Value}
	if len(s.Tags) > 0 {
		j.Tags = make(map[string]string, len(s.Tags))
		for _, t := range s.Tags {
			j.Tags[t.Key] = t.Value
		}
	}
	return j
}
