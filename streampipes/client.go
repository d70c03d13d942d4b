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

package streampipes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/digitalocean/refresher/probe"
	"github.com/digitalocean/refresher/token"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Backend endpoints, relative to the backend base URL.
const (
	HealthPath = "/streampipes-backend/api/v2/setup/configured"
	LoginPath  = "/streampipes-backend/api/v2/auth/login"
)

var (
	// ErrUnexpectedStatus is returned when the login endpoint answers with a
	// non 2xx status.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrEmptyToken is returned when a login response carries no access token.
	ErrEmptyToken = errors.New("empty access token")
)

// LoginRequest is the body of a login call.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the part of a login response the refresher cares about.
type LoginResponse struct {
	AccessToken string `json:"accessToken"`
}

// Client talks to the StreamPipes backend.
type Client struct {
	client   probe.Doer
	prober   *probe.Prober
	health   *probe.Target
	loginURL string
	username string
	password string
}

// ClientConfig represents the configuration of a Client.
type ClientConfig struct {
	// BaseURL is scheme, host and port of the backend.
	BaseURL  string
	Username string
	Password string
	// HTTPClient performs the login call.
	HTTPClient probe.Doer
	// Prober performs health checks.
	Prober *probe.Prober
}

// NewClient creates an instance of Client.
func NewClient(config *ClientConfig) *Client {
	health := probe.NewGet("streampipes_health", config.BaseURL+HealthPath)
	health.Header.Set("Content-Type", "application/json")

	c := &Client{
		client:   config.HTTPClient,
		prober:   config.Prober,
		health:   health,
		loginURL: config.BaseURL + LoginPath,
		username: config.Username,
		password: config.Password,
	}
	if c.client == nil {
		c.client = http.DefaultClient
	}
	return c
}

// WaitHealthy polls the backend until it reports being configured. A nil
// error means the backend is healthy.
func (c *Client) WaitHealthy(ctx context.Context) error {
	return c.prober.Probe(ctx, c.health)
}

// Login authenticates once, without retrying, and returns the issued access
// token.
func (c *Client) Login(ctx context.Context) (token.Credential, error) {
	b, err := json.Marshal(&LoginRequest{
		Username: c.username,
		Password: c.password,
	})
	if err != nil {
		return "", errors.Wrap(err, "encode login request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL, bytes.NewReader(b))
	if err != nil {
		return "", errors.Wrap(err, "build login request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "login request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return "", errors.Wrapf(ErrUnexpectedStatus, "login: %s", resp.Status)
	}

	var lr LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", errors.Wrap(err, "decode login response")
	}
	if lr.AccessToken == "" {
		return "", ErrEmptyToken
	}

	log.WithField("user", c.username).Debug("logged in")
	return token.Credential(lr.AccessToken), nil
}
