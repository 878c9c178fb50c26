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

// Package sender delivers queued samples to exactly one healthy TSD
// endpoint chosen from a configured pool, surviving individual endpoint
// failures through blacklisting and rotation.
package sender

import (
	"fmt"
	"sync"
	"time"
)

// Endpoint is one TSD target.
type Endpoint struct {
	Host string
	Port int
}

// String renders the endpoint as "host:port".
func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

type endpointState struct {
	ep         Endpoint
	blacklisted bool
	expiresAt  time.Time
}

// Pool maintains a shuffled working order over a set of endpoints and the
// blacklist state of each, per spec.md §4.3's pick_connection /
// blacklist_connection contract.
type Pool struct {
	mu      sync.Mutex
	order   []*endpointState
	current int
}

// ShuffleFunc reorders a slice of endpoints in place. Production code uses
// a random shuffle; tests pass the identity function to make rotation
// deterministic, per spec.md §9's dependency-injection guidance.
type ShuffleFunc func(eps []Endpoint)

// NewPool builds a Pool over eps, reordered once by shuffle.
func NewPool(eps []Endpoint, shuffle ShuffleFunc) *Pool {
	cp := make([]Endpoint, len(eps))
	copy(cp, eps)
	if shuffle != nil {
		shuffle(cp)
	}

	order := make([]*endpointState, len(cp))
	for i, e := range cp {
		order[i] = &endpointState{ep: e}
	}

	return &Pool{order: order}
}

// Pick returns the next non-blacklisted endpoint in rotation. If every
// endpoint is blacklisted, it returns the one whose blacklist expires
// soonest. Calling Pick repeatedly without an intervening Blacklist call
// returns the same endpoint.
func (p *Pool) Pick(now time.Time) (Endpoint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.order) == 0 {
		return Endpoint{}, false
	}

	for _, st := range p.order {
		if st.blacklisted && !now.Before(st.expiresAt) {
			st.blacklisted = false
		}
	}

	n := len(p.order)
	for i := 0; i < n; i++ {
		idx := (p.current + i) % n
		if !p.order[idx].blacklisted {
			p.current = idx
			return p.order[idx].ep, true
		}
	}

	soonest := p.order[0]
	for _, st := range p.order[1:] {
		if st.expiresAt.Before(soonest.expiresAt) {
			soonest = st
		}
	}
	return soonest.ep, true
}

// Blacklist marks the endpoint currently selected by the last Pick as
// unusable until now+duration, and advances the rotation so the next Pick
// moves on to a different endpoint.
func (p *Pool) Blacklist(ep Endpoint, now time.Time, duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, st := range p.order {
		if st.ep == ep {
			st.blacklisted = true
			st.expiresAt = now.Add(duration)
			p.current = (i + 1) % len(p.order)
			return
		}
	}
}

// Clear removes the blacklist on ep, e.g. after a successful delivery.
func (p *Pool) Clear(ep Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, st := range p.order {
		if st.ep == ep {
			st.blacklisted = false
			return
		}
	}
}
