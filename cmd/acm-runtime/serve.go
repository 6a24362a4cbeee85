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

package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/api"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/backoff"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/commissioning"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/communicator/listener"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/communicator/publisher"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/config"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/constants"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/control"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/logger"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/metrics"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/monitoring"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/persistence"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/persistence/badgerstore"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/persistence/memory"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/persistence/postgres"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/sentry"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/supervision"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/transport"
	transportmemory "github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/transport/memory"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/transport/natsbus"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/version"
)

func serve(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}

	logger.Initialize()
	defer func() { _ = logger.Sync() }()

	log := logger.For(logger.ComponentCore)
	log.Infof("Starting acm-runtime %s", version.GetAppVersion())

	cfg, err := config.LoadWithEnvOverrides(configPath, logger.For(logger.ComponentConfig))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	sentry.InitSentry(version.GetAppVersion(), cfg.Sentry.DSN, !cfg.Sentry.NoDebounce)

	if sentry.Enabled() {
		logger.WrapGlobalCore(func(core zapcore.Core) zapcore.Core {
			return sentry.NewSentryHook(core)
		})
		log = logger.For(logger.ComponentCore)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Persistence, logger.For(logger.ComponentPersistence))
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to open store: %v", err)

		return err
	}

	defer func() {
		if err := store.Close(); err != nil {
			log.Errorf("Failed to close store: %v", err)
		}
	}()

	bus, err := openBus(ctx, cfg.Transport, logger.For(logger.ComponentTransport))
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to open message bus: %v", err)

		return err
	}

	defer func() {
		if err := bus.Close(); err != nil {
			log.Errorf("Failed to close message bus: %v", err)
		}
	}()

	definitions, err := newDefinitionProvider(cfg.Commissioning, logger.For(logger.ComponentCommissioning))
	if err != nil {
		return err
	}

	recorder := monitoring.NewRecorder(prometheus.DefaultRegisterer)

	core := supervision.NewCore(
		store,
		publisher.New(bus, cfg.Transport.ParticipantTopic, logger.For(logger.ComponentPublisher)),
		cfg.Supervision.Core(),
		logger.For(logger.ComponentSupervisionCore),
	)
	handler := supervision.NewHandler(core, definitions, recorder, logger.For(logger.ComponentSupervisionHandler))
	scanner := supervision.NewScanner(core, logger.For(logger.ComponentSupervisionScanner))
	aspect := control.NewAspect(scanner, cfg.Supervision.Aspect())

	inbound := listener.New(bus, cfg.Transport.RuntimeTopic, handler, aspect, logger.For(logger.ComponentListener))
	if err := inbound.Start(); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", cfg.Transport.RuntimeTopic, err)
	}

	defer func() {
		if err := inbound.Stop(); err != nil {
			log.Errorf("Failed to stop listener: %v", err)
		}
	}()

	metricsServer := metrics.SetupMetricsEndpoint(fmt.Sprintf(":%d", cfg.MetricsPort))
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Failed to shutdown metrics server: %v", err)
		}
	}()

	server := api.NewServer(api.Dependencies{
		Store:      store,
		Supervisor: handler,
		Scans:      aspect,
		Statistics: recorder,
		Faults:     core,
	}, logger.For(logger.ComponentAPI))

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return aspect.Execute(groupCtx)
	})

	group.Go(func() error {
		return server.Run(groupCtx, fmt.Sprintf(":%d", cfg.API.Port))
	})

	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		sentry.ReportIssuef(sentry.IssueTypeError, log, "acm-runtime stopped: %v", err)

		return err
	}

	log.Info("acm-runtime stopped")

	return nil
}

func openStore(ctx context.Context, cfg config.PersistenceConfig, log *zap.SugaredLogger) (persistence.Store, error) {
	switch cfg.Type {
	case constants.PersistenceMemory:
		log.Warn("Using the in-memory store, state is lost on restart")

		return memory.NewStore(), nil
	case constants.PersistenceBadger:
		return badgerstore.Open(cfg.BadgerPath)
	case constants.PersistencePostgres:
		var store *postgres.Store

		err := backoff.RetryWithBackoff(ctx, backoff.DefaultRetryConfig(constants.ConnectMaxRetries), "postgres open", func() error {
			var err error
			store, err = postgres.Open(ctx, cfg.PostgresDSN)

			return err
		}, log)
		if err != nil {
			return nil, err
		}

		return store, nil
	default:
		return nil, fmt.Errorf("unknown persistence type %q", cfg.Type)
	}
}

func openBus(ctx context.Context, cfg config.TransportConfig, log *zap.SugaredLogger) (transport.Bus, error) {
	switch cfg.Type {
	case constants.TransportMemory:
		log.Warn("Using the in-process bus, participants in other processes cannot connect")

		return transportmemory.NewBus(log), nil
	case constants.TransportNATS:
		return natsbus.Connect(ctx, natsbus.Config{
			URL:        cfg.NATSURL,
			ClientName: cfg.ClientName,
		}, log)
	default:
		return nil, fmt.Errorf("unknown transport type %q", cfg.Type)
	}
}

func newDefinitionProvider(cfg config.CommissioningConfig, log *zap.SugaredLogger) (supervision.DefinitionProvider, error) {
	switch cfg.Type {
	case constants.CommissioningHTTP:
		return commissioning.NewHTTPProvider(commissioning.HTTPConfig{BaseURL: cfg.URL, RetryMax: 3}, log), nil
	case constants.CommissioningStatic, "":
		return commissioning.NewStaticProvider(cfg.DefinitionMap())
	default:
		return nil, fmt.Errorf("unknown commissioning type %q", cfg.Type)
	}
}
