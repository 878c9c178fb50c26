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

// Package logging configures the process-wide logrus logger used by every
// component: text or JSON formatting, and a level derived from the CLI's
// repeatable --verbose flag.
package logging

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Format selects the logrus formatter.
type Format uint8

const (
	TextFormat Format = iota
	JSONFormat
)

func (f Format) String() string {
	switch f {
	case JSONFormat:
		return "json"
	default:
		return "text"
	}
}

// ParseFormat maps a config/flag string to a Format, defaulting to text.
func ParseFormat(s string) Format {
	if strings.EqualFold(s, "json") {
		return JSONFormat
	}
	return TextFormat
}

// Config carries the logging tunables sourced from configuration.
type Config struct {
	Format  Format
	Verbose int
}

// Setup installs cfg's formatter and level on the standard logrus logger.
// Verbose count follows the teacher's -v/-vv/-vvv convention: 0 is Info,
// each additional -v steps one level down to Trace.
func Setup(cfg Config) {
	switch cfg.Format {
	case JSONFormat:
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			DisableColors:    false,
			DisableTimestamp: false,
			DisableSorting:   true,
		})
	}

	logrus.SetLevel(levelForVerbosity(cfg.Verbose))
}

func levelForVerbosity(v int) logrus.Level {
	switch {
	case v <= 0:
		return logrus.InfoLevel
	case v == 1:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}
