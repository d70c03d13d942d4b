// Copyright 2016 The Vulcan Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package probe

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// Defaults used when a Config leaves the retry timing unset.
const (
	DefaultBudget   = time.Minute
	DefaultInterval = 10 * time.Second
)

var (
	// ErrBudgetExhausted is returned when a target did not succeed within the
	// retry budget.
	ErrBudgetExhausted = errors.New("retry budget exhausted")
	// ErrUnexpectedStatus is the failure recorded for a response that the
	// success predicate rejected.
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// Doer is the part of *http.Client a Prober needs.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Target is a resolved request that answers whether an endpoint is ready or
// accepted an instruction. A Target is built once and reused across cycles.
type Target struct {
	// Name identifies the target in logs and metrics.
	Name   string
	Method string
	URL    string
	Header http.Header
	// Body is sent with every attempt. A nil Body sends no body at all.
	Body []byte
}

// NewGet returns a Target issuing a GET request to url.
func NewGet(name, url string) *Target {
	return &Target{
		Name:   name,
		Method: http.MethodGet,
		URL:    url,
		Header: http.Header{},
	}
}

// NewPost returns a Target issuing a POST request with body to url.
func NewPost(name, url, contentType string, body []byte) *Target {
	if body == nil {
		body = []byte{}
	}
	t := &Target{
		Name:   name,
		Method: http.MethodPost,
		URL:    url,
		Header: http.Header{},
		Body:   body,
	}
	t.Header.Set("Content-Type", contentType)
	return t
}

// Success2xx accepts any response with a 2xx status code.
func Success2xx(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Prober repeats a Target until it succeeds or a fixed wall-clock budget,
// measured from the first attempt, runs out. Failed attempts are followed by a
// fixed pause. Transport errors and rejected responses are handled the same
// way: logged and retried.
type Prober struct {
	client   Doer
	budget   time.Duration
	interval time.Duration
	success  func(*http.Response) bool
	sleep    func(time.Duration)
	now      func() time.Time

	attemptsTotal *prometheus.CounterVec
}

// Config represents the configuration of a Prober.
type Config struct {
	Client Doer
	// Budget bounds the total time spent on one Probe call. Zero means a single
	// attempt.
	Budget time.Duration
	// Interval is the pause after a failed attempt.
	Interval time.Duration
	// Success decides whether a response ends the probe. Defaults to Success2xx.
	Success func(*http.Response) bool

	// Sleep and Now default to time.Sleep and time.Now.
	Sleep func(time.Duration)
	Now   func() time.Time
}

// NewProber creates an instance of Prober.
func NewProber(config *Config) *Prober {
	p := &Prober{
		client:   config.Client,
		budget:   config.Budget,
		interval: config.Interval,
		success:  config.Success,
		sleep:    config.Sleep,
		now:      config.Now,
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "refresher",
				Subsystem: "probe",
				Name:      "attempts_total",
				Help:      "Count of probe attempts by target and result",
			},
			[]string{"target", "result"},
		),
	}
	if p.client == nil {
		p.client = http.DefaultClient
	}
	if p.success == nil {
		p.success = Success2xx
	}
	if p.sleep == nil {
		p.sleep = time.Sleep
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Describe implements prometheus.Collector.
func (p *Prober) Describe(ch chan<- *prometheus.Desc) {
	p.attemptsTotal.Describe(ch)
}

// Collect implements prometheus.Collector.
func (p *Prober) Collect(ch chan<- prometheus.Metric) {
	p.attemptsTotal.Collect(ch)
}

// Probe issues t until the success predicate accepts a response. It returns
// nil on the first success. Once another attempt would no longer start within
// the budget it gives up and returns an error wrapping ErrBudgetExhausted.
func (p *Prober) Probe(ctx context.Context, t *Target) error {
	start := p.now()
	for attempt := 1; ; attempt++ {
		err := p.try(ctx, t)
		if err == nil {
			p.attemptsTotal.WithLabelValues(t.Name, "success").Inc()
			if attempt > 1 {
				log.WithFields(log.Fields{
					"target":  t.Name,
					"attempt": attempt,
					"elapsed": p.now().Sub(start),
				}).Info("target succeeded after retrying")
			}
			return nil
		}
		p.attemptsTotal.WithLabelValues(t.Name, "failure").Inc()

		elapsed := p.now().Sub(start)
		l := log.WithFields(log.Fields{
			"target":  t.Name,
			"method":  t.Method,
			"url":     t.URL,
			"attempt": attempt,
			"elapsed": elapsed,
		}).WithError(err)
		if elapsed+p.interval >= p.budget {
			l.Error("request failed, giving up")
			return errors.Wrapf(ErrBudgetExhausted, "%s after %d attempts in %s: %v", t.Name, attempt, elapsed, err)
		}
		l.Warn("request failed, retrying")
		p.sleep(p.interval)
	}
}

func (p *Prober) try(ctx context.Context, t *Target) error {
	var body io.Reader
	if t.Body != nil {
		body = bytes.NewReader(t.Body)
	}
	req, err := http.NewRequestWithContext(ctx, t.Method, t.URL, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	for k, vs := range t.Header {
		req.Header[k] = append([]string(nil), vs...)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// drain so the connection can be reused
	io.Copy(io.Discard, resp.Body)

	if !p.success(resp) {
		return errors.Wrapf(ErrUnexpectedStatus, "%s", resp.Status)
	}
	return nil
}
