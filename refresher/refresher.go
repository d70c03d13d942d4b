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

package refresher

import (
	"context"
	"fmt"
	"time"

	"github.com/digitalocean/refresher/token"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/satori/go.uuid"
	log "github.com/sirupsen/logrus"
)

// DefaultInterval is the pause between two completed cycles.
const DefaultInterval = 10 * time.Second

// Step names one stage of a cycle.
type Step string

// Steps of a cycle, in the order they run.
const (
	StepCheckBackendHealth Step = "check_backend_health"
	StepLogin              Step = "login"
	StepWriteToken         Step = "write_token"
	StepCheckScraperHealth Step = "check_scraper_health"
	StepReload             Step = "reload"
)

const outcomeCompleted = "completed"

// HealthChecker waits for a service to become healthy, giving up after its
// own retry budget.
type HealthChecker interface {
	WaitHealthy(ctx context.Context) error
}

// Authenticator obtains a fresh credential from the backend.
type Authenticator interface {
	Login(ctx context.Context) (token.Credential, error)
}

// TokenWriter persists a credential where the scraper reads it.
type TokenWriter interface {
	Write(c token.Credential) error
}

// Reloader tells the scraper to reload its configuration.
type Reloader interface {
	Reload(ctx context.Context) error
}

// StepError reports the step a cycle was aborted at.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

// Cause returns the underlying error.
func (e *StepError) Cause() error {
	return e.Err
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}

// Refresher keeps the scraper's token file fresh. Every cycle waits for the
// backend, logs in, writes the token, waits for the scraper and asks it to
// reload. Any failed step ends the cycle and Run with it; restarting is left
// to whatever supervises the process.
type Refresher struct {
	backend  HealthChecker
	auth     Authenticator
	writer   TokenWriter
	scraper  HealthChecker
	reloader Reloader
	interval time.Duration
	sleep    func(time.Duration)

	cyclesTotal   *prometheus.CounterVec
	stepDurations *prometheus.SummaryVec
	lastSuccess   prometheus.Gauge
	tokenExpiry   prometheus.Gauge
}

// Config represents the configuration of a Refresher.
type Config struct {
	Backend       HealthChecker
	Authenticator Authenticator
	Writer        TokenWriter
	Scraper       HealthChecker
	Reloader      Reloader

	// Interval between completed cycles. Defaults to DefaultInterval.
	Interval time.Duration
	// Sleep defaults to time.Sleep.
	Sleep func(time.Duration)
}

// NewRefresher creates an instance of Refresher.
func NewRefresher(config *Config) *Refresher {
	r := &Refresher{
		backend:  config.Backend,
		auth:     config.Authenticator,
		writer:   config.Writer,
		scraper:  config.Scraper,
		reloader: config.Reloader,
		interval: config.Interval,
		sleep:    config.Sleep,
		cyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "refresher",
				Name:      "cycles_total",
				Help:      "Count of cycles by outcome, which is either completed or the step the cycle was aborted at",
			},
			[]string{"outcome"},
		),
		stepDurations: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Namespace: "refresher",
				Name:      "step_duration_seconds",
				Help:      "Durations of cycle steps, retries included",
			},
			[]string{"step"},
		),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "refresher",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last completed cycle",
		}),
		tokenExpiry: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "refresher",
			Name:      "token_expiry_timestamp_seconds",
			Help:      "Unix time the last written token expires at, 0 if unknown",
		}),
	}
	if r.interval == 0 {
		r.interval = DefaultInterval
	}
	if r.sleep == nil {
		r.sleep = time.Sleep
	}
	return r
}

// Describe implements prometheus.Collector.
func (r *Refresher) Describe(ch chan<- *prometheus.Desc) {
	r.cyclesTotal.Describe(ch)
	r.stepDurations.Describe(ch)
	r.lastSuccess.Describe(ch)
	r.tokenExpiry.Describe(ch)
}

// Collect implements prometheus.Collector.
func (r *Refresher) Collect(ch chan<- prometheus.Metric) {
	r.cyclesTotal.Collect(ch)
	r.stepDurations.Collect(ch)
	r.lastSuccess.Collect(ch)
	r.tokenExpiry.Collect(ch)
}

// Run runs cycles back to back, pausing for the configured interval after each
// completed one. It only returns when a cycle fails, with that cycle's
// *StepError.
func (r *Refresher) Run(ctx context.Context) error {
	for {
		if err := r.RunCycle(ctx); err != nil {
			return err
		}
		r.sleep(r.interval)
	}
}

// RunCycle runs a single cycle. It returns nil when every step succeeded and
// a *StepError naming the first failed step otherwise. Steps after a failed
// one are not run.
func (r *Refresher) RunCycle(ctx context.Context) error {
	l := log.WithField("cycle", uuid.NewV4().String())

	var cred token.Credential
	steps := []struct {
		step Step
		run  func() error
	}{
		{StepCheckBackendHealth, func() error {
			return r.backend.WaitHealthy(ctx)
		}},
		{StepLogin, func() error {
			var err error
			cred, err = r.auth.Login(ctx)
			return err
		}},
		{StepWriteToken, func() error {
			if err := r.writer.Write(cred); err != nil {
				return err
			}
			r.observe(l, cred)
			return nil
		}},
		{StepCheckScraperHealth, func() error {
			return r.scraper.WaitHealthy(ctx)
		}},
		{StepReload, func() error {
			return r.reloader.Reload(ctx)
		}},
	}

	for _, s := range steps {
		t0 := time.Now()
		err := s.run()
		r.stepDurations.WithLabelValues(string(s.step)).Observe(time.Since(t0).Seconds())
		if err != nil {
			r.cyclesTotal.WithLabelValues(string(s.step)).Inc()
			l.WithField("step", s.step).WithError(err).Error("cycle aborted")
			return &StepError{Step: s.step, Err: err}
		}
		l.WithField("step", s.step).Debug("step done")
	}

	r.cyclesTotal.WithLabelValues(outcomeCompleted).Inc()
	r.lastSuccess.SetToCurrentTime()
	l.Info("token refreshed and prometheus reloaded")
	return nil
}

// observe records what can be learned from a freshly written credential.
func (r *Refresher) observe(l *log.Entry, cred token.Credential) {
	claims, err := token.Inspect(cred)
	if err != nil {
		r.tokenExpiry.Set(0)
		l.WithError(err).Debug("token is not a readable jwt")
		return
	}

	if claims.ExpiresAt.IsZero() {
		r.tokenExpiry.Set(0)
	} else {
		r.tokenExpiry.Set(float64(claims.ExpiresAt.Unix()))
	}
	l.WithFields(log.Fields{
		"subject":    claims.Subject,
		"expires_at": claims.ExpiresAt,
	}).Debug("token written")
}
