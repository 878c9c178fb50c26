/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
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

// Package atomic provides a lock-free, type-safe keyed map over sync.Map,
// for the one consumer that needs it: collector.Table, which must let the
// status surface read records while the manager's rescan and the readers'
// counters mutate the table concurrently.
package atomic

// Map is an untyped lock-free map keyed by K. It is the building block
// MapTyped wraps with a type assertion on every Load/Range.
type Map[K comparable] interface {
	// Load returns the value stored for key, or ok=false if absent.
	Load(key K) (value any, ok bool)
	// Store sets the value for key, overwriting any existing entry.
	Store(key K, value any)
	// Delete removes key, if present.
	Delete(key K)
	// Range calls f for every entry in unspecified order, stopping early
	// if f returns false. An entry whose key is the zero value of K is
	// deleted rather than passed to f, since Cast reports the zero value
	// as not cast.
	Range(f func(key K, value any) bool)
}

// MapTyped is Map with values narrowed to V instead of any.
type MapTyped[K comparable, V any] interface {
	// Load returns the value stored for key, or ok=false if absent, if
	// the stored value does not assert to V, or if it is the zero value
	// of V.
	Load(key K) (value V, ok bool)
	// Store sets the value for key, overwriting any existing entry.
	Store(key K, value V)
	// Delete removes key, if present.
	Delete(key K)
	// Range calls f for every entry whose stored value asserts to V, in
	// unspecified order, stopping early if f returns false. An entry
	// whose value does not assert to V, or is the zero value of V, is
	// dropped rather than passed to f.
	Range(f func(key K, value V) bool)
}

// NewMapAny returns an empty Map[K] backed by a sync.Map.
func NewMapAny[K comparable]() Map[K] {
	return &ma[K]{}
}

// NewMapTyped returns an empty MapTyped[K, V] backed by a sync.Map.
func NewMapTyped[K comparable, V any]() MapTyped[K, V] {
	return &mt[K, V]{m: NewMapAny[K]()}
}
