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

// Package control runs the supervision scanner on a fixed interval.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/backoff"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/constants"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/logger"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/metrics"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/sentry"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/starvationchecker"
)

// Scanner is the part of supervision.Scanner the aspect drives.
type Scanner interface {
	Run(ctx context.Context, counterCheck bool) error
	HandleParticipantStatus(participant models.Identifier)
}

type Config struct {
	// Interval between scheduled scans. It also bounds a single scan.
	Interval time.Duration
	// MaxConsecutiveFailures is the number of failed scans in a row after
	// which Execute gives up.
	MaxConsecutiveFailures int
}

// Aspect serialises all scans on one goroutine. Scheduled scans spend retry
// budget, checks requested through DoCheck do not.
type Aspect struct {
	scanner             Scanner
	logger              *zap.SugaredLogger
	starvationChecker   *starvationchecker.StarvationChecker
	wake                chan struct{}
	cfg                 Config
	currentTick         uint64
	consecutiveFailures int

	// pending is the one queued request. Requests arriving while it is
	// queued merge into it.
	mu                  sync.Mutex
	pending             bool
	pendingCounterCheck bool
}

func NewAspect(scanner Scanner, cfg Config) *Aspect {
	log := logger.For(logger.ComponentAspect)
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	if cfg.Interval <= 0 {
		cfg.Interval = constants.DefaultScanInterval
	}

	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = constants.DefaultMaxConsecutiveScanFailures
	}

	metrics.InitErrorCounter(metrics.ComponentAspect, "main")

	return &Aspect{
		scanner:  scanner,
		logger:   log,
		wake:     make(chan struct{}, 1),
		cfg:      cfg,
	}
}

// Schedule requests a full scan. It never blocks. A request made while
// another one is still queued is merged into it.
func (a *Aspect) Schedule() {
	a.enqueue(true)
}

// DoCheck requests a scan that only starts and settles transitions.
func (a *Aspect) DoCheck() {
	a.enqueue(false)
}

func (a *Aspect) enqueue(counterCheck bool) {
	a.mu.Lock()
	if a.pending {
		a.logger.Debugf("Scan already queued, merging request (counterCheck=%t)", counterCheck)
	}

	a.pending = true
	a.pendingCounterCheck = a.pendingCounterCheck || counterCheck
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// take removes the queued request. A merged request is a full scan as soon
// as one of its parts was.
func (a *Aspect) take() (counterCheck bool, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.pending {
		return false, false
	}

	counterCheck = a.pendingCounterCheck
	a.pending = false
	a.pendingCounterCheck = false

	return counterCheck, true
}

// HandleParticipantStatus tells the scanner that participant is alive.
func (a *Aspect) HandleParticipantStatus(participant models.Identifier) {
	a.scanner.HandleParticipantStatus(participant)
}

// Execute runs until ctx is cancelled or scans keep failing. Cancellation is
// not an error.
func (a *Aspect) Execute(ctx context.Context) error {
	a.starvationChecker = starvationchecker.NewStarvationChecker(constants.StarvationThresholdFactor * a.cfg.Interval)
	defer a.starvationChecker.Stop()

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	a.logger.Infof("Supervision aspect started, scanning every %s", a.cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Supervision aspect stopped")

			return nil
		case <-ticker.C:
			a.Schedule()
		case <-a.wake:
			counterCheck, ok := a.take()
			if !ok {
				continue
			}

			stop, err := a.scan(ctx, counterCheck)
			if stop {
				return err
			}
		}
	}
}

// scan runs one scan with a deadline of one interval. stop is true when
// Execute has to return.
func (a *Aspect) scan(ctx context.Context, counterCheck bool) (bool, error) {
	a.currentTick++

	start := time.Now()

	timeoutCtx, cancel := context.WithTimeout(ctx, a.cfg.Interval)
	err := a.scanner.Run(timeoutCtx, counterCheck)
	cancel()

	cycleTime := time.Since(start)

	if cycleTime > a.cfg.Interval {
		a.logger.Warnf("Supervision scan took longer than the scan interval: %v", cycleTime)

		if cycleTime > 2*a.cfg.Interval {
			a.logger.Errorf("Supervision scan took longer than twice the scan interval: %v", cycleTime)
		}
	}

	metrics.ObserveScanTime(metrics.ComponentAspect, "main", cycleTime)

	if a.starvationChecker != nil {
		a.starvationChecker.UpdateLastScanTime()
	}

	return a.handleScanError(ctx, err)
}

func (a *Aspect) handleScanError(ctx context.Context, err error) (bool, error) {
	switch {
	case err == nil:
		a.consecutiveFailures = 0

		return false, nil
	case ctx.Err() != nil:
		a.logger.Info("Supervision aspect cancelled")

		return true, nil
	case errors.Is(err, context.DeadlineExceeded):
		sentry.ReportIssuef(sentry.IssueTypeWarning, a.logger, "Supervision scan %d timed out: %v", a.currentTick, err)

		return false, nil
	}

	a.consecutiveFailures++
	err = backoff.CategorizeError(err)

	metrics.IncErrorCountAndLog(metrics.ComponentAspect, "main", err, a.logger)

	if backoff.IsTransientError(err) && a.consecutiveFailures < a.cfg.MaxConsecutiveFailures {
		a.logger.Warnf("Supervision scan %d failed (%d/%d): %v", a.currentTick, a.consecutiveFailures, a.cfg.MaxConsecutiveFailures, err)

		return false, nil
	}

	sentry.ReportIssuef(sentry.IssueTypeError, a.logger, "Supervision scan failed %d times in a row, giving up: %v", a.consecutiveFailures, err)

	return true, backoff.NewPermanentError(fmt.Errorf("supervision scan failed %d times in a row: %w", a.consecutiveFailures, err))
}
