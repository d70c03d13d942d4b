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

// Refresher command line flag names. The backend and scraper coordinates are
// named by the config package.
const (
	flagCycleInterval    = "cycle-interval"
	flagRetryBudget      = "retry-budget"
	flagRetryInterval    = "retry-interval"
	flagRequestTimeout   = "request-timeout"
	flagTelemetryAddress = "telemetry-address"
	flagTelemetryPath    = "telemetry-path"
	flagLogLevel         = "log-level"
	flagLogFormat        = "log-format"
)
