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

package config

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/constants"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/env"
)

// ApplyEnvOverrides replaces config values with the matching environment
// variables. Unset variables keep the value from the file.
//
//	ACM_MAX_RETRY_COUNT, ACM_SCAN_INTERVAL, ACM_MAX_WAIT_MS, ACM_MAX_STATUS_WAIT_MS
//	TRANSPORT_TYPE, NATS_URL, PERSISTENCE_TYPE, BADGER_PATH, POSTGRES_DSN
//	COMMISSIONING_URL, API_PORT, METRICS_PORT, SENTRY_DSN, SENTRY_DEBOUNCE
//
// Setting COMMISSIONING_URL also switches commissioning to http.
func ApplyEnvOverrides(cfg FullConfig, log *zap.SugaredLogger) (FullConfig, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	var errs []error

	intVar := func(key string, target *int) {
		value, err := env.GetAsInt(key, false, *target)
		if err != nil {
			errs = append(errs, err)

			return
		}

		if value != *target {
			log.Debugf("%s overrides config value %d with %d", key, *target, value)
		}

		*target = value
	}

	stringVar := func(key string, target *string) {
		value, err := env.GetAsString(key, false, *target)
		if err != nil {
			errs = append(errs, err)

			return
		}

		*target = value
	}

	intVar("ACM_MAX_RETRY_COUNT", &cfg.Supervision.MaxRetryCount)
	intVar("ACM_MAX_WAIT_MS", &cfg.Supervision.MaxWaitMs)
	intVar("ACM_MAX_STATUS_WAIT_MS", &cfg.Supervision.MaxStatusWaitMs)
	intVar("API_PORT", &cfg.API.Port)
	intVar("METRICS_PORT", &cfg.MetricsPort)

	interval, err := env.GetAsDuration("ACM_SCAN_INTERVAL", false, cfg.Supervision.ScanInterval)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.Supervision.ScanInterval = interval
	}

	stringVar("TRANSPORT_TYPE", &cfg.Transport.Type)
	stringVar("NATS_URL", &cfg.Transport.NATSURL)
	stringVar("PERSISTENCE_TYPE", &cfg.Persistence.Type)
	stringVar("BADGER_PATH", &cfg.Persistence.BadgerPath)
	stringVar("POSTGRES_DSN", &cfg.Persistence.PostgresDSN)
	stringVar("SENTRY_DSN", &cfg.Sentry.DSN)

	debounce, err := env.GetAsBool("SENTRY_DEBOUNCE", false, !cfg.Sentry.NoDebounce)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.Sentry.NoDebounce = !debounce
	}

	commissioningURL := cfg.Commissioning.URL
	stringVar("COMMISSIONING_URL", &cfg.Commissioning.URL)

	if cfg.Commissioning.URL != commissioningURL {
		cfg.Commissioning.Type = constants.CommissioningHTTP
	}

	if len(errs) > 0 {
		return FullConfig{}, fmt.Errorf("invalid environment overrides: %w", errors.Join(errs...))
	}

	return cfg, nil
}

// LoadWithEnvOverrides loads path, applies the environment and validates the result.
func LoadWithEnvOverrides(path string, log *zap.SugaredLogger) (FullConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return FullConfig{}, err
	}

	cfg, err = ApplyEnvOverrides(cfg, log)
	if err != nil {
		return FullConfig{}, err
	}

	if err := cfg.Validate(); err != nil {
		return FullConfig{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
