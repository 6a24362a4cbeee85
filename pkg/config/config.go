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

// Package config loads the runtime configuration from a yaml file and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/commissioning"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/constants"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/control"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/supervision"
)

type FullConfig struct {
	Supervision   SupervisionConfig   `yaml:"supervision"`
	Transport     TransportConfig     `yaml:"transport"`
	Persistence   PersistenceConfig   `yaml:"persistence"`
	Commissioning CommissioningConfig `yaml:"commissioning"`
	API           APIConfig           `yaml:"api"`
	Sentry        SentryConfig        `yaml:"sentry,omitempty"`
	MetricsPort   int                 `yaml:"metricsPort"` // Port to expose metrics on
}

type SupervisionConfig struct {
	ScanInterval               time.Duration `yaml:"scanInterval"`
	CommandTTL                 time.Duration `yaml:"commandTTL"`
	MaxRetryCount              int           `yaml:"maxRetryCount"`
	MaxWaitMs                  int           `yaml:"maxWaitMs"`
	MaxStatusWaitMs            int           `yaml:"maxStatusWaitMs"`
	ScanConcurrency            int           `yaml:"scanConcurrency"`
	MaxConsecutiveScanFailures int           `yaml:"maxConsecutiveScanFailures"`
}

type TransportConfig struct {
	Type             string `yaml:"type"` // nats or memory
	NATSURL          string `yaml:"natsUrl,omitempty"`
	ClientName       string `yaml:"clientName,omitempty"`
	ParticipantTopic string `yaml:"participantTopic"`
	RuntimeTopic     string `yaml:"runtimeTopic"`
}

type PersistenceConfig struct {
	Type        string `yaml:"type"` // memory, badger or postgres
	BadgerPath  string `yaml:"badgerPath,omitempty"`
	PostgresDSN string `yaml:"postgresDsn,omitempty"`
}

type CommissioningConfig struct {
	Type        string            `yaml:"type"` // static or http
	URL         string            `yaml:"url,omitempty"`
	Definitions []TypeDefinitions `yaml:"definitions,omitempty"`
}

// TypeDefinitions are the element definitions commissioned for one participant type.
type TypeDefinitions struct {
	ParticipantType models.Identifier          `yaml:"participantType"`
	Definitions     []models.ElementDefinition `yaml:"definitions"`
}

type APIConfig struct {
	Port int `yaml:"port"`
}

type SentryConfig struct {
	DSN string `yaml:"dsn,omitempty"`

	// NoDebounce reports every error instead of one per level and window.
	NoDebounce bool `yaml:"noDebounce,omitempty"`
}

// Default returns a config that runs a single process with in-memory bus and store.
func Default() FullConfig {
	return FullConfig{
		Supervision: SupervisionConfig{
			MaxRetryCount:              constants.DefaultMaxRetryCount,
			ScanInterval:               constants.DefaultScanInterval,
			MaxWaitMs:                  constants.DefaultMaxWaitMs,
			MaxStatusWaitMs:            constants.DefaultMaxStatusWaitMs,
			ScanConcurrency:            constants.DefaultScanConcurrency,
			MaxConsecutiveScanFailures: constants.DefaultMaxConsecutiveScanFailures,
			CommandTTL:                 constants.DefaultCommandTTL,
		},
		Transport: TransportConfig{
			Type:             constants.TransportMemory,
			NATSURL:          constants.DefaultNATSURL,
			ClientName:       constants.DefaultClientName,
			ParticipantTopic: constants.DefaultParticipantTopic,
			RuntimeTopic:     constants.DefaultRuntimeTopic,
		},
		Persistence: PersistenceConfig{
			Type:        constants.PersistenceMemory,
			BadgerPath:  constants.DefaultBadgerPath,
			PostgresDSN: constants.DefaultPostgresDSN,
		},
		Commissioning: CommissioningConfig{
			Type: constants.CommissioningStatic,
		},
		API:         APIConfig{Port: constants.DefaultAPIPort},
		MetricsPort: constants.DefaultMetricsPort,
	}
}

// Load reads path on top of Default. A missing file yields the defaults.
func Load(path string) (FullConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}

	if err != nil {
		return FullConfig{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg, err = Parse(data)
	if err != nil {
		return FullConfig{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes yaml on top of Default. Unknown keys are rejected.
func Parse(data []byte) (FullConfig, error) {
	cfg := Default()

	if len(data) == 0 {
		return cfg, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return FullConfig{}, err
	}

	return cfg, nil
}

// Validate reports every problem of the config at once.
func (c FullConfig) Validate() error {
	var errs []error

	s := c.Supervision
	if s.MaxRetryCount <= 0 {
		errs = append(errs, fmt.Errorf("supervision.maxRetryCount must be positive, got %d", s.MaxRetryCount))
	}

	if s.ScanInterval <= 0 {
		errs = append(errs, fmt.Errorf("supervision.scanInterval must be positive, got %s", s.ScanInterval))
	}

	if s.MaxWaitMs < 0 {
		errs = append(errs, fmt.Errorf("supervision.maxWaitMs must not be negative, got %d", s.MaxWaitMs))
	}

	if s.MaxStatusWaitMs < 0 {
		errs = append(errs, fmt.Errorf("supervision.maxStatusWaitMs must not be negative, got %d", s.MaxStatusWaitMs))
	}

	if s.ScanConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("supervision.scanConcurrency must be positive, got %d", s.ScanConcurrency))
	}

	if s.MaxConsecutiveScanFailures <= 0 {
		errs = append(errs, fmt.Errorf("supervision.maxConsecutiveScanFailures must be positive, got %d", s.MaxConsecutiveScanFailures))
	}

	if s.CommandTTL <= 0 {
		errs = append(errs, fmt.Errorf("supervision.commandTTL must be positive, got %s", s.CommandTTL))
	}

	errs = append(errs, c.Transport.validate(), c.Persistence.validate(), c.Commissioning.validate())

	if err := validatePort("api.port", c.API.Port); err != nil {
		errs = append(errs, err)
	}

	if err := validatePort("metricsPort", c.MetricsPort); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (t TransportConfig) validate() error {
	var errs []error

	switch t.Type {
	case constants.TransportMemory:
	case constants.TransportNATS:
		if t.NATSURL == "" {
			errs = append(errs, errors.New("transport.natsUrl is required for the nats transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("transport.type %q is not one of %s, %s", t.Type, constants.TransportNATS, constants.TransportMemory))
	}

	if t.ParticipantTopic == "" || t.RuntimeTopic == "" {
		errs = append(errs, errors.New("transport.participantTopic and transport.runtimeTopic are required"))
	} else if t.ParticipantTopic == t.RuntimeTopic {
		errs = append(errs, fmt.Errorf("transport.participantTopic and transport.runtimeTopic must differ, both are %q", t.RuntimeTopic))
	}

	return errors.Join(errs...)
}

func (p PersistenceConfig) validate() error {
	switch p.Type {
	case constants.PersistenceMemory:
	case constants.PersistenceBadger:
		if p.BadgerPath == "" {
			return errors.New("persistence.badgerPath is required for the badger store")
		}
	case constants.PersistencePostgres:
		if p.PostgresDSN == "" {
			return errors.New("persistence.postgresDsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("persistence.type %q is not one of %s, %s, %s", p.Type,
			constants.PersistenceMemory, constants.PersistenceBadger, constants.PersistencePostgres)
	}

	return nil
}

func (c CommissioningConfig) validate() error {
	switch c.Type {
	case constants.CommissioningStatic:
		var errs []error

		seen := make(map[models.Identifier]struct{}, len(c.Definitions))
		for _, entry := range c.Definitions {
			if entry.ParticipantType.Name == "" || entry.ParticipantType.Version == "" {
				errs = append(errs, errors.New("commissioning.definitions: participantType needs name and version"))

				continue
			}

			if _, dup := seen[entry.ParticipantType]; dup {
				errs = append(errs, fmt.Errorf("commissioning.definitions: participant type %s listed twice", entry.ParticipantType))
			}

			seen[entry.ParticipantType] = struct{}{}

			if err := commissioning.ValidateDefinitions(entry.Definitions); err != nil {
				errs = append(errs, fmt.Errorf("commissioning.definitions of %s: %w", entry.ParticipantType, err))
			}
		}

		return errors.Join(errs...)
	case constants.CommissioningHTTP:
		if _, err := url.ParseRequestURI(c.URL); err != nil {
			return fmt.Errorf("commissioning.url %q is not a valid URL: %w", c.URL, err)
		}

		return nil
	default:
		return fmt.Errorf("commissioning.type %q is not one of %s, %s", c.Type, constants.CommissioningStatic, constants.CommissioningHTTP)
	}
}

func validatePort(field string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", field, port)
	}

	return nil
}

// Core returns the settings of the supervision core.
func (s SupervisionConfig) Core() supervision.Config {
	return supervision.Config{
		MaxRetryCount:   s.MaxRetryCount,
		MaxWait:         time.Duration(s.MaxWaitMs) * time.Millisecond,
		MaxStatusWait:   time.Duration(s.MaxStatusWaitMs) * time.Millisecond,
		ScanConcurrency: s.ScanConcurrency,
		CommandTTL:      s.CommandTTL,
	}
}

// Aspect returns the settings of the scan loop.
func (s SupervisionConfig) Aspect() control.Config {
	return control.Config{
		Interval:               s.ScanInterval,
		MaxConsecutiveFailures: s.MaxConsecutiveScanFailures,
	}
}

// DefinitionMap indexes the static definitions by participant type.
func (c CommissioningConfig) DefinitionMap() map[models.Identifier][]models.ElementDefinition {
	out := make(map[models.Identifier][]models.ElementDefinition, len(c.Definitions))
	for _, entry := range c.Definitions {
		out[entry.ParticipantType] = append(out[entry.ParticipantType], entry.Definitions...)
	}

	return out
}
