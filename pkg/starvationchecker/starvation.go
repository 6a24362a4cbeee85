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

package starvationchecker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/logger"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/metrics"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/sentry"
)

// DefaultCheckInterval is how often the background goroutine looks at the last scan time.
const DefaultCheckInterval = time.Second

// StarvationChecker watches the supervision aspect from the outside. The aspect
// calls UpdateLastScanTime after every scan; a background goroutine reports
// starvation when no scan finished within the threshold, which also catches
// a scan that hangs entirely.
type StarvationChecker struct {
	lastScanTime        time.Time
	ctx                 context.Context //nolint:containedctx // lifetime of the background goroutine
	logger              *zap.SugaredLogger
	cancel              context.CancelFunc
	wg                  sync.WaitGroup
	starvationThreshold time.Duration
	checkInterval       time.Duration
	stopOnce            sync.Once
	mutex               sync.RWMutex
}

// NewStarvationChecker starts a checker with the default check interval.
// It must be stopped with Stop.
func NewStarvationChecker(threshold time.Duration) *StarvationChecker {
	return NewStarvationCheckerWithInterval(threshold, DefaultCheckInterval)
}

func NewStarvationCheckerWithInterval(threshold time.Duration, checkInterval time.Duration) *StarvationChecker {
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	checker := &StarvationChecker{
		starvationThreshold: threshold,
		checkInterval:       checkInterval,
		lastScanTime:        time.Now(),
		logger:              logger.For(logger.ComponentStarvationChecker),
		ctx:                 ctx,
		cancel:              cancel,
	}

	checker.wg.Add(1)

	go checker.checkStarvationLoop()

	checker.logger.Infof("Starvation checker created with threshold %s", threshold)

	return checker
}

func (s *StarvationChecker) checkStarvationLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			sinceLastScan := time.Since(s.GetLastScanTime())

			if sinceLastScan > s.starvationThreshold {
				metrics.AddStarvationTime(s.checkInterval.Seconds())
				sentry.ReportIssuef(sentry.IssueTypeWarning, s.logger, "Supervision loop starvation detected: %.2f seconds since last scan", sinceLastScan.Seconds())
			} else {
				s.logger.Debugf("Supervision loop is healthy, last scan was %.2f seconds ago", sinceLastScan.Seconds())
			}
		}
	}
}

// Stop terminates the background goroutine. It is safe to call more than once.
func (s *StarvationChecker) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping starvation checker")
		s.cancel()
		s.wg.Wait()
		s.logger.Info("Starvation checker stopped")
	})
}

// UpdateLastScanTime marks now as the end of the most recent scan.
func (s *StarvationChecker) UpdateLastScanTime() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.lastScanTime = time.Now()
}

func (s *StarvationChecker) GetLastScanTime() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.lastScanTime
}

// IsStarved reports whether the last scan is older than the threshold.
func (s *StarvationChecker) IsStarved() bool {
	return time.Since(s.GetLastScanTime()) > s.starvationThreshold
}
