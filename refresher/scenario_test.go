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

package refresher_test

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/digitalocean/refresher/probe"
	"github.com/digitalocean/refresher/refresher"
	"github.com/digitalocean/refresher/scraper"
	"github.com/digitalocean/refresher/streampipes"
	"github.com/digitalocean/refresher/token"
)

type clock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
	// onSleep runs after every sleep.
	onSleep func()
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	if c.onSleep != nil {
		c.onSleep()
	}
}

// backend fakes the StreamPipes endpoints the refresher uses.
type backend struct {
	mu          sync.Mutex
	healthy     bool
	loginStatus int
	loginBody   string
	logins      int
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch r.URL.Path {
	case streampipes.HealthPath:
		if !b.healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"configured":true}`))
	case streampipes.LoginPath:
		b.logins++
		w.WriteHeader(b.loginStatus)
		w.Write([]byte(b.loginBody))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (b *backend) setHealthy(healthy bool) {
	b.mu.Lock()
	b.healthy = healthy
	b.mu.Unlock()
}

func (b *backend) loginCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logins
}

// prometheusServer fakes the Prometheus endpoints the refresher uses.
type prometheusServer struct {
	mu      sync.Mutex
	scrapes int
	reloads int
}

func (p *prometheusServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == scraper.HealthPath:
		p.scrapes++
		w.Write([]byte("up 1\n"))
	case r.Method == http.MethodPost && r.URL.Path == scraper.ReloadPath:
		p.reloads++
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *prometheusServer) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrapes, p.reloads
}

type harness struct {
	clock      *clock
	backend    *backend
	prometheus *prometheusServer
	tokenFile  string
	refresher  *refresher.Refresher
}

func newHarness(t *testing.T, b *backend) *harness {
	h := &harness{
		clock:      &clock{now: time.Unix(0, 0)},
		backend:    b,
		prometheus: &prometheusServer{},
		tokenFile:  filepath.Join(t.TempDir(), "token"),
	}

	bsrv := httptest.NewServer(h.backend)
	t.Cleanup(bsrv.Close)
	psrv := httptest.NewServer(h.prometheus)
	t.Cleanup(psrv.Close)

	prober := probe.NewProber(&probe.Config{
		Client:   http.DefaultClient,
		Budget:   probe.DefaultBudget,
		Interval: probe.DefaultInterval,
		Sleep:    h.clock.Sleep,
		Now:      h.clock.Now,
	})
	sp := streampipes.NewClient(&streampipes.ClientConfig{
		BaseURL:    bsrv.URL,
		Username:   "admin@streampipes.apache.org",
		Password:   "admin",
		HTTPClient: http.DefaultClient,
		Prober:     prober,
	})
	prom := scraper.NewClient(&scraper.ClientConfig{
		BaseURL: psrv.URL,
		Prober:  prober,
	})

	h.refresher = refresher.NewRefresher(&refresher.Config{
		Backend:       sp,
		Authenticator: sp,
		Writer:        token.NewFileWriter(&token.FileWriterConfig{Path: h.tokenFile}),
		Scraper:       prom,
		Reloader:      prom,
		Sleep:         h.clock.Sleep,
	})
	return h
}

func (h *harness) readToken(t *testing.T) string {
	b, err := ioutil.ReadFile(h.tokenFile)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestEverythingHealthy(t *testing.T) {
	h := newHarness(t, &backend{
		healthy:     true,
		loginStatus: http.StatusOK,
		loginBody:   `{"accessToken":"abc123"}`,
	})

	// the backend goes away during the first pause between cycles
	h.clock.onSleep = func() {
		if len(h.clock.sleeps) == 1 {
			h.backend.setHealthy(false)
		}
	}

	err := h.refresher.Run(context.Background())
	se, ok := err.(*refresher.StepError)
	if !ok || se.Step != refresher.StepCheckBackendHealth {
		t.Fatalf("Run() => %v; expected to stop at %q in the second cycle", err, refresher.StepCheckBackendHealth)
	}

	if got := h.readToken(t); got != "abc123" {
		t.Errorf("token file => %q; expected %q", got, "abc123")
	}
	if h.clock.sleeps[0] != refresher.DefaultInterval {
		t.Errorf("first sleep => %s; expected the %s pause between cycles", h.clock.sleeps[0], refresher.DefaultInterval)
	}
	if n := h.backend.loginCount(); n != 1 {
		t.Errorf("logins => %d; expected 1", n)
	}
	if scrapes, reloads := h.prometheus.counts(); scrapes != 1 || reloads != 1 {
		t.Errorf("prometheus saw %d health checks and %d reloads; expected 1 and 1", scrapes, reloads)
	}
}

func TestBackendNeverHealthy(t *testing.T) {
	h := newHarness(t, &backend{
		healthy:     false,
		loginStatus: http.StatusOK,
		loginBody:   `{"accessToken":"abc123"}`,
	})
	start := h.clock.Now()

	err := h.refresher.Run(context.Background())
	se, ok := err.(*refresher.StepError)
	if !ok || se.Step != refresher.StepCheckBackendHealth {
		t.Fatalf("Run() => %v; expected to stop at %q", err, refresher.StepCheckBackendHealth)
	}

	elapsed := h.clock.Now().Sub(start)
	if elapsed < probe.DefaultBudget-probe.DefaultInterval || elapsed > probe.DefaultBudget+probe.DefaultInterval {
		t.Errorf("gave up after %s; expected about %s", elapsed, probe.DefaultBudget)
	}
	if n := h.backend.loginCount(); n != 0 {
		t.Errorf("logins => %d; expected none", n)
	}
	if _, err := ioutil.ReadFile(h.tokenFile); err == nil {
		t.Errorf("token file exists; expected it never to be created")
	}
}

func TestLoginRejected(t *testing.T) {
	h := newHarness(t, &backend{
		healthy:     true,
		loginStatus: http.StatusUnauthorized,
	})
	if err := ioutil.WriteFile(h.tokenFile, []byte("previous-token"), 0644); err != nil {
		t.Fatal(err)
	}

	err := h.refresher.Run(context.Background())
	se, ok := err.(*refresher.StepError)
	if !ok || se.Step != refresher.StepLogin {
		t.Fatalf("Run() => %v; expected to stop at %q", err, refresher.StepLogin)
	}

	if got := h.readToken(t); got != "previous-token" {
		t.Errorf("token file => %q; expected it untouched", got)
	}
	if scrapes, reloads := h.prometheus.counts(); scrapes != 0 || reloads != 0 {
		t.Errorf("prometheus saw %d health checks and %d reloads; expected none", scrapes, reloads)
	}
	if len(h.clock.sleeps) != 0 {
		t.Errorf("slept %v; expected no sleep", h.clock.sleeps)
	}
}
