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
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

func telemetryHandler(g prometheus.Gatherer, path string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}

// serveTelemetry exposes the refresher's own metrics. A failing listener is
// logged and otherwise ignored; it never stops the refresh loop.
func serveTelemetry(addr, path string, g prometheus.Gatherer) {
	l := log.WithField("address", addr).WithField("path", path)
	l.Info("serving telemetry")
	if err := http.ListenAndServe(addr, telemetryHandler(g, path)); err != nil {
		l.WithError(err).Error("telemetry listener stopped")
	}
}
