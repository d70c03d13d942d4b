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

package config

import (
	"net"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Keys under which configuration values are stored in viper. They double as
// command line flag names.
const (
	KeyBackendHost     = "sp-host"
	KeyBackendPort     = "sp-port"
	KeyBackendUsername = "sp-username"
	KeyBackendPassword = "sp-password"
	KeyScraperHost     = "prometheus-host"
	KeyScraperPort     = "prometheus-port"
	KeyTokenFile       = "token-file"
)

// Environment variables the sidecar is configured with. They are read as-is,
// without any prefix.
const (
	EnvBackendHost     = "SP_HOST"
	EnvBackendPort     = "SP_PORT"
	EnvBackendUsername = "SP_USERNAME"
	EnvBackendPassword = "SP_PASSWORD"
	EnvScraperHost     = "PROMETHEUS_HOST"
	EnvScraperPort     = "PROMETHEUS_PORT"
	EnvTokenFile       = "TOKEN_FILE"
)

var envs = map[string]string{
	KeyBackendHost:     EnvBackendHost,
	KeyBackendPort:     EnvBackendPort,
	KeyBackendUsername: EnvBackendUsername,
	KeyBackendPassword: EnvBackendPassword,
	KeyScraperHost:     EnvScraperHost,
	KeyScraperPort:     EnvScraperPort,
	KeyTokenFile:       EnvTokenFile,
}

// Config is the snapshot of backend and scraper coordinates the refresher runs
// with. It is read once at startup and never changes afterwards.
type Config struct {
	BackendHost     string
	BackendPort     string
	BackendUsername string
	BackendPassword string

	ScraperHost string
	ScraperPort string

	TokenFile string
}

// Bind associates every configuration key with its environment variable.
func Bind(v *viper.Viper) error {
	for key, env := range envs {
		if err := v.BindEnv(key, env); err != nil {
			return errors.Wrapf(err, "bind %s to %s", key, env)
		}
	}
	return nil
}

// Load reads the current values from v. Missing values are left empty; they
// surface later as failed requests or a failed token write.
func Load(v *viper.Viper) Config {
	return Config{
		BackendHost:     v.GetString(KeyBackendHost),
		BackendPort:     v.GetString(KeyBackendPort),
		BackendUsername: v.GetString(KeyBackendUsername),
		BackendPassword: v.GetString(KeyBackendPassword),
		ScraperHost:     v.GetString(KeyScraperHost),
		ScraperPort:     v.GetString(KeyScraperPort),
		TokenFile:       v.GetString(KeyTokenFile),
	}
}

// BackendURL is the base URL of the StreamPipes backend.
func (c Config) BackendURL() string {
	return baseURL(c.BackendHost, c.BackendPort)
}

// ScraperURL is the base URL of the Prometheus server.
func (c Config) ScraperURL() string {
	return baseURL(c.ScraperHost, c.ScraperPort)
}

func baseURL(host, port string) string {
	return "http://" + net.JoinHostPort(host, port)
}
