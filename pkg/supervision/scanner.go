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

package supervision

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/internal/fsm"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/constants"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/ctxutil"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/ctxutil/ctxmutex"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/metrics"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/persistence"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/sentry"
)

// Scanner is the reconciliation pass over all instances and participants.
type Scanner struct {
	*Core
	scanMu *ctxmutex.CtxMutex
	log    *zap.SugaredLogger
}

func NewScanner(core *Core, log *zap.SugaredLogger) *Scanner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Scanner{Core: core, scanMu: ctxmutex.NewCtxMutex(), log: log}
}

// Run scans every instance, and with counterCheck also spends retry budget and
// checks participants. Only one Run is in flight at a time. Failures of single
// instances are logged; an error is only returned when the store cannot be read
// or ctx ends.
func (s *Scanner) Run(ctx context.Context, counterCheck bool) error {
	if err := s.scanMu.Lock(ctx); err != nil {
		return err
	}
	defer s.scanMu.Unlock()

	instances, err := s.store.GetInstances(ctx, persistence.InstanceFilter{})
	if err != nil {
		return fmt.Errorf("failed to load instances: %w", err)
	}

	concurrency := s.cfg.ScanConcurrency
	if concurrency <= 0 {
		concurrency = constants.DefaultScanConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, instance := range instances {
		if _, ok := ctxutil.HasSufficientTime(gctx, constants.MinimumTimePerInstance); !ok {
			s.log.Warnf("Scan ran out of time, %d instances left for the next scan", len(instances)-i)

			break
		}

		id := instance.ID

		g.Go(func() error {
			err := s.scanInstance(gctx, id, counterCheck)
			if err == nil {
				return nil
			}

			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}

			metrics.IncErrorCountAndLog(metrics.ComponentSupervisionScanner, id, err, s.log)
			s.log.Warnf("Failed to scan instance %s: %v", id, err)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if !counterCheck {
		return nil
	}

	return s.scanParticipants(ctx)
}

func (s *Scanner) scanInstance(ctx context.Context, id string, counterCheck bool) error {
	return s.withInstanceLock(ctx, id, func() error {
		instance, err := s.store.GetInstance(ctx, id)
		if errors.Is(err, persistence.ErrNotFound) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("failed to load instance %s: %w", id, err)
		}

		metrics.UpdateInstanceState(id, string(instance.State), string(instance.OrderedState))

		if instance.State == instance.OrderedState.AsState() {
			s.instanceCounter.Clear(id)

			return nil
		}

		if !fsm.IsTransitional(instance.State) {
			return s.initiate(ctx, instance)
		}

		dst, err := fsm.Destination(instance.State)
		if err != nil {
			return err
		}

		if instance.AllElementsIn(dst) {
			return s.settle(ctx, instance)
		}

		if !counterCheck {
			return nil
		}

		return s.retry(ctx, instance, dst)
	})
}

// retry re-sends the pending command to every participant that has not arrived
// at dst, once the wait expired. When the budget is spent the instance is faulted.
func (s *Scanner) retry(ctx context.Context, instance *models.Instance, dst models.State) error {
	id := instance.ID

	if s.instanceCounter.IsFault(id) {
		return nil
	}

	if s.cfg.MaxWait > 0 && s.instanceCounter.GetDuration(id) <= s.cfg.MaxWait {
		return nil
	}

	if !s.instanceCounter.Count(id) {
		s.instanceCounter.SetFault(id)
		metrics.IncFaults(metrics.FaultKindInstance)
		sentry.ReportSupervisionErrorf(sentry.IssueTypeWarning, s.log, metrics.FaultKindInstance, id, "retry",
			"instance %s stuck in %s after %d retries", id, instance.State, s.instanceCounter.MaxRetryCount())

		return nil
	}

	for _, participant := range instance.ParticipantsNotIn(dst) {
		kind, err := s.send(ctx, instance, &participant)
		if err != nil {
			s.log.Warnf("Instance %s: failed to re-send command to %s: %v", id, participant, err)

			continue
		}

		metrics.IncCommandRetries(string(kind))
	}

	s.log.Debugf("Instance %s: retry %d/%d for %s", id, s.instanceCounter.GetCounter(id), s.instanceCounter.MaxRetryCount(), instance.State)

	return nil
}

// HandleParticipantStatus resets the silence bookkeeping of a participant.
func (s *Scanner) HandleParticipantStatus(participant models.Identifier) {
	s.participantCounter.Clear(participant)
}

func (s *Scanner) scanParticipants(ctx context.Context) error {
	participants, err := s.store.GetParticipants(ctx, persistence.ParticipantFilter{})
	if err != nil {
		return fmt.Errorf("failed to load participants: %w", err)
	}

	for _, participant := range participants {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := s.scanParticipant(ctx, participant.ID); err != nil {
			metrics.IncErrorCountAndLog(metrics.ComponentSupervisionScanner, participant.Key(), err, s.log)
			s.log.Warnf("Failed to scan participant %s: %v", participant.ID, err)
		}
	}

	return nil
}

// scanParticipant re-reads the participant under its lock. A participant that
// deregistered since the listing is skipped, and only the health fields of the
// current record are changed.
func (s *Scanner) scanParticipant(ctx context.Context, id models.Identifier) error {
	return s.withParticipantLock(ctx, id, func() error {
		participant, err := s.store.GetParticipant(ctx, id)
		if errors.Is(err, persistence.ErrNotFound) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("failed to load participant %s: %w", id, err)
		}

		if s.participantCounter.IsFault(id) {
			return nil
		}

		if s.cfg.MaxStatusWait > 0 && s.participantCounter.GetDuration(id) <= s.cfg.MaxStatusWait {
			return nil
		}

		if s.participantCounter.Count(id) {
			if err := s.publisher.SendStatusReq(ctx, id); err != nil {
				s.log.Warnf("Failed to request status of %s: %v", id, err)
			}

			participant.HealthStatus = models.HealthStatusNotHealthy
		} else {
			s.participantCounter.SetFault(id)
			metrics.IncFaults(metrics.FaultKindParticipant)
			sentry.ReportSupervisionErrorf(sentry.IssueTypeWarning, s.log, metrics.FaultKindParticipant, id.String(), "status_check",
				"participant %s did not answer %d status requests", id, s.participantCounter.MaxRetryCount())

			participant.State = models.ParticipantStateOffLine
			participant.HealthStatus = models.HealthStatusOffLine
		}

		if err := s.store.SaveParticipant(ctx, participant); err != nil {
			return fmt.Errorf("failed to save participant %s: %w", id, err)
		}

		return nil
	})
}
