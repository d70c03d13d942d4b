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

package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/digitalocean/refresher/config"
	"github.com/digitalocean/refresher/probe"
	"github.com/digitalocean/refresher/refresher"
	"github.com/digitalocean/refresher/scraper"
	"github.com/digitalocean/refresher/streampipes"
	"github.com/digitalocean/refresher/token"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Refresh handles parsing the command line options, initializes, and starts
// the refresh loop accordingly. It returns only when a cycle fails, so the
// process exits non-zero and its supervisor can restart it.
func Refresh() *cobra.Command {
	refresh := &cobra.Command{
		Use:          "refresh",
		Short:        "keeps the prometheus token file for streampipes fresh and reloads prometheus",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// bind pflags to viper so they are settable by env variables
			cmd.Flags().VisitAll(func(f *pflag.Flag) {
				viper.BindPFlag(f.Name, f)
			})
			if err := config.Bind(viper.GetViper()); err != nil {
				return err
			}
			if err := setupLogging(viper.GetString(flagLogLevel), viper.GetString(flagLogFormat)); err != nil {
				return err
			}
			cfg := config.Load(viper.GetViper())

			// one client for the lifetime of the process
			httpClient := &http.Client{
				Timeout: viper.GetDuration(flagRequestTimeout),
			}
			prober := probe.NewProber(&probe.Config{
				Client:   httpClient,
				Budget:   viper.GetDuration(flagRetryBudget),
				Interval: viper.GetDuration(flagRetryInterval),
			})

			sp := streampipes.NewClient(&streampipes.ClientConfig{
				BaseURL:    cfg.BackendURL(),
				Username:   cfg.BackendUsername,
				Password:   cfg.BackendPassword,
				HTTPClient: httpClient,
				Prober:     prober,
			})
			prom := scraper.NewClient(&scraper.ClientConfig{
				BaseURL: cfg.ScraperURL(),
				Prober:  prober,
			})

			r := refresher.NewRefresher(&refresher.Config{
				Backend:       sp,
				Authenticator: sp,
				Writer:        token.NewFileWriter(&token.FileWriterConfig{Path: cfg.TokenFile}),
				Scraper:       prom,
				Reloader:      prom,
				Interval:      viper.GetDuration(flagCycleInterval),
			})

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				prober,
				r,
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			if addr := viper.GetString(flagTelemetryAddress); addr != "" {
				go serveTelemetry(addr, viper.GetString(flagTelemetryPath), reg)
			}

			log.WithFields(log.Fields{
				"backend":    cfg.BackendURL(),
				"prometheus": cfg.ScraperURL(),
				"token_file": cfg.TokenFile,
			}).Info("starting")
			return r.Run(context.Background())
		},
	}

	refresh.Flags().String(config.KeyBackendHost, "", "streampipes backend host (env "+config.EnvBackendHost+")")
	refresh.Flags().String(config.KeyBackendPort, "", "streampipes backend port (env "+config.EnvBackendPort+")")
	refresh.Flags().String(config.KeyBackendUsername, "", "streampipes user to log in as (env "+config.EnvBackendUsername+")")
	refresh.Flags().String(config.KeyBackendPassword, "", "password of the streampipes user (env "+config.EnvBackendPassword+")")
	refresh.Flags().String(config.KeyScraperHost, "", "prometheus host (env "+config.EnvScraperHost+")")
	refresh.Flags().String(config.KeyScraperPort, "", "prometheus port (env "+config.EnvScraperPort+")")
	refresh.Flags().String(config.KeyTokenFile, "", "file prometheus reads the token from (env "+config.EnvTokenFile+")")

	refresh.Flags().Duration(flagCycleInterval, refresher.DefaultInterval, "pause between two completed cycles")
	refresh.Flags().Duration(flagRetryBudget, probe.DefaultBudget, "how long health checks and reloads are retried")
	refresh.Flags().Duration(flagRetryInterval, probe.DefaultInterval, "pause between two failed attempts")
	refresh.Flags().Duration(flagRequestTimeout, 0*time.Second, "timeout of a single http request, 0 for none")
	refresh.Flags().String(flagTelemetryAddress, "", "address to serve the refresher's own metrics on, empty to disable")
	refresh.Flags().String(flagTelemetryPath, "/metrics", "path to serve the refresher's own metrics on")
	refresh.Flags().String(flagLogLevel, "info", "log level (debug, info, warn, error)")
	refresh.Flags().String(flagLogFormat, "text", "log format (text or json)")

	return refresh
}
