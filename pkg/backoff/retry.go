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

package backoff

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
)

// RetryConfig tunes RetryWithBackoff.
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

// DefaultRetryConfig is used for opening the message bus and the store at startup.
func DefaultRetryConfig(maxRetries uint64) RetryConfig {
	return RetryConfig{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxRetries:      maxRetries,
	}
}

// RetryWithBackoff runs op until it succeeds, returns a permanent error,
// the retries are used up or ctx is done.
// Permanent errors are returned immediately without further attempts.
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, operation string, op func() error, log *zap.SugaredLogger) error {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = cfg.InitialInterval
	expBackoff.MaxInterval = cfg.MaxInterval
	// The retry count bounds the attempts, not the elapsed time
	expBackoff.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, cfg.MaxRetries), ctx)

	var permanentErr error

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++

		err := op()
		if err == nil {
			return nil
		}

		if IsPermanentError(err) {
			permanentErr = err

			return nil
		}

		log.Warnf("%s failed (attempt %d/%d): %v", operation, attempt, cfg.MaxRetries+1, err)

		return err
	}, policy)

	if permanentErr != nil {
		return permanentErr
	}

	if err != nil {
		return NewPermanentError(err)
	}

	return nil
}
