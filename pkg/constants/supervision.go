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

import "time"

// Supervision defaults. These are applied by the config layer only; the
// supervision packages always receive explicit values.
const (
	// DefaultMaxRetryCount is the number of re-sends an instance or participant
	// gets before it is marked faulted.
	DefaultMaxRetryCount = 5

	// DefaultScanInterval is the time between two scheduled supervision scans.
	// The scan interval is also the retry interval, there is no extra backoff.
	DefaultScanInterval = 10 * time.Second

	// DefaultMaxWaitMs is how long an instance may sit in a transitional state
	// before the scanner starts re-sending the command.
	DefaultMaxWaitMs = 20000

	// DefaultMaxStatusWaitMs is how long a participant may stay silent before
	// it is asked for its status.
	DefaultMaxStatusWaitMs = 100000

	// DefaultScanConcurrency bounds how many instances one scan works on in parallel.
	DefaultScanConcurrency = 4

	// DefaultMaxConsecutiveScanFailures is the number of failed scans in a row
	// (store unavailable) after which the aspect gives up and stops the process.
	DefaultMaxConsecutiveScanFailures = 3

	// DefaultCommandTTL is how long an issued command stays correlatable.
	// Acks arriving later are treated as stale.
	DefaultCommandTTL = 10 * time.Minute

	// CommandCullInterval is how often expired commands are removed from the tracker.
	CommandCullInterval = 30 * time.Second

	// StarvationThresholdFactor multiplies the scan interval to get the time
	// after which the supervision loop is considered starved.
	StarvationThresholdFactor = 3

	// MinimumTimePerInstance is the remaining time a scan needs before it starts
	// working on another instance.
	MinimumTimePerInstance = 5 * time.Millisecond

	// MessageHandlingTimeout bounds the handling of a single inbound message.
	MessageHandlingTimeout = 30 * time.Second
)
