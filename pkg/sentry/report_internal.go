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

package sentry

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// debounceWindow is the minimum time between two sentry events of the same level.
const debounceWindow = 2 * time.Hour

type debouncer struct {
	lastSent time.Time
	mu       sync.Mutex
}

// allow reports whether an event may be sent now and records the send.
func (d *debouncer) allow() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if shouldDebounceErrors.Load() && time.Since(d.lastSent) < debounceWindow {
		return false
	}

	d.lastSent = time.Now()

	return true
}

var (
	errorDebouncer   = &debouncer{lastSent: time.Now().Add(-24 * time.Hour)}
	warningDebouncer = &debouncer{lastSent: time.Now().Add(-24 * time.Hour)}
)

// reportFatal sends a fatal error to Sentry, logs it and panics.
func reportFatal(err error, log *zap.SugaredLogger, context map[string]interface{}) {
	log.Error("The ACM runtime has encountered a fatal error and will now terminate.")
	log.Errorf("Error: %s", err)
	log.Errorf("Stack trace: %s", string(debug.Stack()))

	if Enabled() {
		sendSentryEvent(createSentryEventWithContext(sentry.LevelFatal, err, context))
		sentry.Flush(time.Second * 5)
	}

	log.Panic("Fatal error")
}

// reportError always logs; the sentry event is debounced.
func reportError(err error, log *zap.SugaredLogger, context map[string]interface{}) {
	log.Errorw(err.Error(), flatten(context)...)

	if !Enabled() || !errorDebouncer.allow() {
		return
	}

	sendSentryEvent(createSentryEventWithContext(sentry.LevelError, err, context))
}

// reportWarning always logs; the sentry event is debounced.
func reportWarning(err error, log *zap.SugaredLogger, context map[string]interface{}) {
	log.Warnw(err.Error(), flatten(context)...)

	if !Enabled() || !warningDebouncer.allow() {
		return
	}

	sendSentryEvent(createSentryEventWithContext(sentry.LevelWarning, err, context))
}

func flatten(context map[string]interface{}) []interface{} {
	if len(context) == 0 {
		return nil
	}

	keysAndValues := make([]interface{}, 0, 2*len(context))
	for k, v := range context {
		keysAndValues = append(keysAndValues, k, v)
	}

	return keysAndValues
}
