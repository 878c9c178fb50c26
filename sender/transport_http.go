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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/nabbar/tsdagent/sample"
	"github.com/sirupsen/logrus"
)

// HTTPTransport is the HTTP-batch transport: each batch is POSTed as a JSON
// array to the configured api path. retryablehttp is configured with zero
// retries — the sender's own blacklist/reconnect state machine owns retry
// policy, not the HTTP client — but its connection reuse and structured
// logging are kept.
type HTTPTransport struct {
	client  *retryablehttp.Client
	apiPath string
	scheme  string
	timeout time.Duration
}

// NewHTTPTransport builds an HTTPTransport posting to apiPath (e.g.
// "/api/put") over scheme ("http" or "https").
func NewHTTPTransport(apiPath, scheme string, timeout time.Duration) *HTTPTransport {
	if apiPath == "" {
		apiPath = "/api/put"
	}
	if !strings.HasPrefix(apiPath, "/") {
		apiPath = "/" + apiPath
	}
	if scheme == "" {
		scheme = "http"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := retryablehttp.NewClient()
	c.RetryMax = 0
	c.Logger = retryableLogAdapter{}
	c.HTTPClient.Timeout = timeout

	return &HTTPTransport{client: c, apiPath: apiPath, scheme: scheme, timeout: timeout}
}

// Send converts lines (line-protocol "put ..." text) into a JSON array with
// wireLinesToJSON, POSTs it to ep, and classifies the response per spec.md §4.3: 2xx delivers, 4xx rejects
// permanently, anything else is a transient failure.
func (t *HTTPTransport) Send(ep Endpoint, lines []string) Outcome {
	body, err := wireLinesToJSON(lines)
	if err != nil {
		logrus.WithError(err).Warn("failed to convert wire lines to JSON batch")
		return OutcomeRejected
	}
	url := fmt.Sprintf("%s://%s%s", t.scheme, ep.String(), t.apiPath)

	req, err := retryablehttp.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		logrus.WithError(err).Warn("failed to build TSD request")
		return OutcomeFailed
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		logrus.WithError(err).WithField("endpoint", ep.String()).Warn("TSD request failed")
		return OutcomeFailed
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return OutcomeDelivered
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		logrus.WithField("endpoint", ep.String()).WithField("status", resp.StatusCode).Warn("TSD rejected batch permanently")
		return OutcomeRejected
	default:
		logrus.WithField("endpoint", ep.String()).WithField("status", resp.StatusCode).Warn("TSD transport failure")
		return OutcomeFailed
	}
}

// Close is a no-op: the underlying client pools its own connections and has
// no explicit shutdown.
func (t *HTTPTransport) Close() {}

// retryableLogAdapter routes retryablehttp's internal logging through
// logrus instead of the standard library logger it defaults to.
type retryableLogAdapter struct{}

func (retryableLogAdapter) Printf(format string, args ...any) {
	logrus.Debugf(format, args...)
}

// wireLinesToJSON re-parses already-serialized "put ..." wire lines back
// into samples and marshals them as the JSON batch array the HTTP API
// expects. The outbound queue always stores line-protocol text regardless
// of transport mode, so HTTP mode pays this one conversion at send time.
func wireLinesToJSON(lines []string) ([]byte, error) {
	samples := make([]sample.Sample, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimPrefix(l, "put ")
		s, err := sample.Parse(l)
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return json.Marshal(samples)
}
