// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package constants

const (
	// DefaultConfigPath is where the runtime looks for its config when --config is not given.
	DefaultConfigPath = "/data/acm-runtime.yaml"

	DefaultMetricsPort = 8080
	DefaultAPIPort     = 6969

	// DefaultAppVersion is used for local builds without version ldflags.
	DefaultAppVersion = "0.0.0-dev"

	DefaultDevelopmentEnvironment = "development"
	DefaultProductionEnvironment  = "production"

	// Transport
	TransportNATS   = "nats"
	TransportMemory = "memory"

	DefaultNATSURL = "nats://localhost:4222"
	// DefaultParticipantTopic carries runtime -> participant messages.
	DefaultParticipantTopic = "acm.participant"
	// DefaultRuntimeTopic carries participant -> runtime messages.
	DefaultRuntimeTopic = "acm.runtime"
	DefaultClientName   = "acm-runtime"

	// Persistence
	PersistenceMemory   = "memory"
	PersistenceBadger   = "badger"
	PersistencePostgres = "postgres"

	DefaultBadgerPath  = "/data/acm"
	DefaultPostgresDSN = "postgres://localhost/acm?sslmode=disable"

	// Commissioning
	CommissioningStatic = "static"
	CommissioningHTTP   = "http"

	// ConnectMaxRetries bounds the backoff retries when opening the bus or the store.
	ConnectMaxRetries = 5
)
