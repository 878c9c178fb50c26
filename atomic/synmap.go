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

package atomic

type mt[K comparable, V any] struct {
	m Map[K]
}

func (o *mt[K, V]) Load(key K) (value V, ok bool) {
	v, present := o.m.Load(key)
	if !present {
		return value, false
	}
	return Cast[V](v)
}

func (o *mt[K, V]) Store(key K, value V) {
	o.m.Store(key, value)
}

func (o *mt[K, V]) Delete(key K) {
	o.m.Delete(key)
}

func (o *mt[K, V]) Range(f func(key K, value V) bool) {
	o.m.Range(func(key K, value any) bool {
		v, ok := Cast[V](value)
		if !ok {
			o.m.Delete(key)
			return true
		}
		return f(key, v)
	})
}
