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

package sender

import (
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LineTransport is the line-protocol transport: a pipelined TCP connection
// that writes "put ...\n" lines without per-sample acknowledgement. A
// connection failure is treated as delivery failure of the whole batch.
type LineTransport struct {
	mu           sync.Mutex
	conn         net.Conn
	connectedTo  Endpoint
	writeTimeout time.Duration
	dialTimeout  time.Duration
}

// NewLineTransport builds a LineTransport with the given per-write and
// dial deadlines.
func NewLineTransport(dialTimeout, writeTimeout time.Duration) *LineTransport {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &LineTransport{dialTimeout: dialTimeout, writeTimeout: writeTimeout}
}

// Send writes lines, each terminated by \n, pipelined over a single TCP
// connection to ep, reconnecting if the prior connection was to a
// different endpoint or is no longer usable.
func (t *LineTransport) Send(ep Endpoint, lines []string) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil || t.connectedTo != ep {
		t.closeLocked()
		conn, err := net.DialTimeout("tcp", ep.String(), t.dialTimeout)
		if err != nil {
			logrus.WithError(err).WithField("endpoint", ep.String()).Warn("line transport dial failed")
			return OutcomeFailed
		}
		t.conn = conn
		t.connectedTo = ep
	}

	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}

	_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	if _, err := io.WriteString(t.conn, b.String()); err != nil {
		logrus.WithError(err).WithField("endpoint", ep.String()).Warn("line transport write failed")
		t.closeLocked()
		return OutcomeFailed
	}

	return OutcomeDelivered
}

// Close releases the underlying connection, if any.
func (t *LineTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeLocked()
}

func (t *LineTransport) closeLocked() {
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
}
