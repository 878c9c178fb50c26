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

// Package runner collects the small, dependency-free helpers shared by every
// supervised background activity in the agent.
package runner

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// RecoveryCaller logs a recovered panic against the given caller label
// (typically "<package>/<function>") instead of letting it crash the
// process. It is a no-op if r is nil, so callers can pass recover()'s
// result unconditionally.
func RecoveryCaller(caller string, r any, extra ...string) {
	if r == nil {
		return
	}

	msg := fmt.Sprintf("recovered panic in %s: %v", caller, r)
	if len(extra) > 0 {
		msg = fmt.Sprintf("%s (%s)", msg, extra[0])
	}

	logrus.WithField("caller", caller).Error(msg)
}
