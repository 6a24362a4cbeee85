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
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/Masterminds/semver/v3"
	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/constants"
)

var (
	shouldDebounceErrors atomic.Bool
	enabled              atomic.Bool
)

func init() {
	shouldDebounceErrors.Store(true)
}

// EnableTestMode disables debouncing for testing.
func EnableTestMode() {
	shouldDebounceErrors.Store(false)
}

// DisableTestMode restores normal debouncing behavior.
func DisableTestMode() {
	shouldDebounceErrors.Store(true)
}

// Enabled reports whether InitSentry configured a client.
func Enabled() bool {
	return enabled.Load()
}

// EnvironmentForVersion maps a semver build version to a sentry environment.
// Release versions go to production, pre-releases and unparsable versions to development.
func EnvironmentForVersion(appVersion string) (string, error) {
	version, err := semver.NewVersion(appVersion)
	if err != nil {
		return constants.DefaultDevelopmentEnvironment, fmt.Errorf("failed to parse app version %q: %w", appVersion, err)
	}

	if version.Prerelease() == "" {
		return constants.DefaultProductionEnvironment, nil
	}

	return constants.DefaultDevelopmentEnvironment, nil
}

// InitSentry initializes sentry for the given app version and DSN.
// An empty DSN or the default development version leaves sentry disabled.
func InitSentry(appVersion string, dsn string, debounceErrors bool) {
	shouldDebounceErrors.Store(debounceErrors)

	if dsn == "" || appVersion == "" || appVersion == constants.DefaultAppVersion {
		zap.S().Debug("Sentry disabled (no DSN or local development build)")

		return
	}

	environment, err := EnvironmentForVersion(appVersion)
	if err != nil {
		zap.S().Errorf("Using default environment (development): %s", err)
	}

	err = sentry.Init(sentry.ClientOptions{
		Dsn:           dsn,
		Environment:   environment,
		Release:       "acm-runtime@" + appVersion,
		EnableTracing: false,
	})
	if err != nil {
		zap.S().Errorf("Failed to initialize Sentry: %s", err)

		return
	}

	enabled.Store(true)
}

func getMeaningfulErrorTitle(err error) string {
	message := err.Error()

	// First sentence or phrase, up to a period, comma or colon
	idx := strings.IndexAny(message, ".,:")
	if idx > 0 {
		message = message[:idx]
	}

	if len(message) > 100 {
		message = message[:97] + "..."
	}

	return message
}

func createSentryEvent(level sentry.Level, err error) *sentry.Event {
	event := sentry.NewEvent()
	event.Level = level
	event.Message = err.Error()

	exception := &sentry.Exception{
		Type:       getMeaningfulErrorTitle(err),
		Value:      err.Error(),
		Stacktrace: sentry.ExtractStacktrace(err),
	}
	event.Exception = []sentry.Exception{*exception}

	if level == sentry.LevelFatal || level == sentry.LevelError {
		threads, stacktrace := captureGoroutinesAsThreads()
		event.Threads = threads
		event.Attachments = append(event.Attachments, &sentry.Attachment{
			Filename:    "stacktrace.txt",
			ContentType: "text/plain",
			Payload:     stacktrace,
		})
	}

	event.Fingerprint = []string{
		"{{ default }}",
		"level: " + getLevelString(level),
	}

	return event
}

// createSentryEventWithContext adds context values as tags (scalars) or extra data (everything else).
func createSentryEventWithContext(level sentry.Level, err error, context map[string]interface{}) *sentry.Event {
	event := createSentryEvent(level, err)

	if context == nil {
		return event
	}

	if event.Tags == nil {
		event.Tags = make(map[string]string)
	}

	for key, value := range context {
		switch convertedValue := value.(type) {
		case string:
			event.Tags[key] = convertedValue
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool:
			event.Tags[key] = fmt.Sprintf("%v", convertedValue)
		default:
			if event.Extra == nil {
				event.Extra = make(map[string]interface{})
			}

			event.Extra[key] = convertedValue
		}

		for _, fingerprintKey := range FingerprintKeys {
			if key == fingerprintKey {
				event.Fingerprint = append(event.Fingerprint, fmt.Sprintf("%s: %v", key, value))
			}
		}
	}

	return event
}

func getLevelString(level sentry.Level) string {
	switch level {
	case sentry.LevelDebug:
		return "debug"
	case sentry.LevelInfo:
		return "info"
	case sentry.LevelWarning:
		return "warning"
	case sentry.LevelError:
		return "error"
	case sentry.LevelFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

func sendSentryEvent(event *sentry.Event) {
	localHub := sentry.CurrentHub().Clone()
	localHub.CaptureEvent(event)
}
