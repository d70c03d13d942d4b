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

package scraper

import (
	"context"

	"github.com/digitalocean/refresher/probe"
)

// Prometheus endpoints, relative to the server base URL.
const (
	HealthPath = "/metrics"
	ReloadPath = "/-/reload"
)

// Client talks to the Prometheus server that scrapes StreamPipes with the
// refreshed token.
type Client struct {
	prober *probe.Prober
	health *probe.Target
	reload *probe.Target
}

// ClientConfig represents the configuration of a Client.
type ClientConfig struct {
	// BaseURL is scheme, host and port of the Prometheus server.
	BaseURL string
	Prober  *probe.Prober
}

// NewClient creates an instance of Client.
func NewClient(config *ClientConfig) *Client {
	health := probe.NewGet("prometheus_health", config.BaseURL+HealthPath)
	health.Header.Set("Content-Type", "application/json")

	return &Client{
		prober: config.Prober,
		health: health,
		reload: probe.NewPost("prometheus_reload", config.BaseURL+ReloadPath, "text/plain", nil),
	}
}

// WaitHealthy polls the Prometheus metrics endpoint until it answers. A nil
// error means Prometheus is healthy.
func (c *Client) WaitHealthy(ctx context.Context) error {
	return c.prober.Probe(ctx, c.health)
}

// Reload asks Prometheus to reload its configuration, retrying within the
// prober's budget until the request is accepted. Prometheus only serves the
// endpoint when started with --web.enable-lifecycle.
func (c *Client) Reload(ctx context.Context) error {
	return c.prober.Probe(ctx, c.reload)
}
