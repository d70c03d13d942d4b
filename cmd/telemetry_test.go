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
	"net/http/httptest"
	"testing"

	"github.com/digitalocean/refresher/probe"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

func counterValue(fam *dto.MetricFamily, labels map[string]string) (float64, bool) {
	for _, m := range fam.GetMetric() {
		matched := 0
		for _, lp := range m.GetLabel() {
			if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
				matched++
			}
		}
		if matched == len(labels) {
			return m.GetCounter().GetValue(), true
		}
	}
	return 0, false
}

func TestTelemetryHandler(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer target.Close()

	prober := probe.NewProber(&probe.Config{Client: target.Client()})
	if err := prober.Probe(context.Background(), probe.NewGet("backend", target.URL)); err != nil {
		t.Fatalf("Probe() => unexpected error %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prober)

	srv := httptest.NewServer(telemetryHandler(reg, "/telemetry"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/telemetry")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var parser expfmt.TextParser
	fams, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		t.Fatalf("TextToMetricFamilies() => unexpected error %v", err)
	}

	fam, ok := fams["refresher_probe_attempts_total"]
	if !ok {
		t.Fatalf("telemetry => families %v; expected refresher_probe_attempts_total", fams)
	}
	v, ok := counterValue(fam, map[string]string{"target": "backend", "result": "success"})
	if !ok || v != 1 {
		t.Errorf("successful backend attempts => %v (found=%t); expected 1", v, ok)
	}

	other, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	other.Body.Close()
	if other.StatusCode != http.StatusNotFound {
		t.Errorf("GET /metrics => %d; expected %d when serving on /telemetry", other.StatusCode, http.StatusNotFound)
	}
}
