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

// Outcome classifies what a transport attempt did to the batch it was
// given, per spec.md §4.3's response classification.
type Outcome int

const (
	// OutcomeDelivered means the batch was accepted by the TSD and must be
	// dropped from the queue.
	OutcomeDelivered Outcome = iota
	// OutcomeRejected means the TSD permanently refused the batch (e.g.
	// HTTP 4xx); it is dropped from the queue since retrying won't help.
	OutcomeRejected
	// OutcomeFailed means the batch could not be delivered due to a
	// transient failure (timeout, connection error, HTTP 5xx); it must be
	// left in the queue for retry and the endpoint potentially blacklisted.
	OutcomeFailed
)

// Transport sends one batch of already-serialized wire lines to ep and
// reports what happened to the batch.
type Transport interface {
	Send(ep Endpoint, lines []string) Outcome
	Close()
}
