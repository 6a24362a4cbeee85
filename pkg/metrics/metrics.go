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

package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/logger"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/sentry"
)

const (
	// Component Labels.
	ComponentAspect             = "supervision_aspect"
	ComponentSupervisionScanner = "supervision_scanner"
	ComponentSupervisionHandler = "supervision_handler"
	ComponentListener           = "listener"
	ComponentPublisher          = "publisher"
	ComponentPersistence        = "persistence"
	ComponentCommissioning      = "commissioning"
	ComponentAPI                = "api"

	// Fault kinds.
	FaultKindInstance    = "instance"
	FaultKindParticipant = "participant"
)

var (
	namespace = "umh"
	subsystem = "acm"

	errorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors encountered by component",
		},
		[]string{"component", "instance"},
	)

	scanTime = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "scan_duration_milliseconds",
			Help:      "Time taken by a supervision scan (in milliseconds)",
			Objectives: map[float64]float64{
				0.5:  0.01,
				0.9:  0.01,
				0.95: 0.01,
				0.99: 0.01,
			},
		},
		[]string{"component", "instance"},
	)

	starvationSeconds = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "scan_starved_total_seconds",
			Help:      "Total seconds the supervision loop was starved",
		},
	)

	messagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_published_total",
			Help:      "Messages published to participants by message type",
		},
		[]string{"type"},
	)

	messagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_received_total",
			Help:      "Messages received from participants by message type",
		},
		[]string{"type"},
	)

	commandRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "command_retries_total",
			Help:      "Commands re-sent by the scanner because no ack arrived in time",
		},
		[]string{"type"},
	)

	faults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "faults_total",
			Help:      "Instances or participants that exhausted their retry budget",
		},
		[]string{"kind"},
	)

	staleAcks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stale_acks_total",
			Help:      "Acks discarded because they did not match an outstanding command",
		},
		[]string{"type"},
	)

	instanceState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "instance_state",
			Help:      "Actual state of an instance (0=Uninitialised, 1=Uninitialised2Passive, 2=Passive, 3=Passive2Running, 4=Running, 5=Running2Passive, 6=Passive2Uninitialised, -1=Unknown)",
		},
		[]string{"instance"},
	)

	instanceOrderedState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "instance_ordered_state",
			Help:      "Ordered state of an instance, same encoding as instance_state",
		},
		[]string{"instance"},
	)
)

// SetupMetricsEndpoint starts an HTTP server to expose metrics
// This should be called once at application startup.
func SetupMetricsEndpoint(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sentry.ReportIssue(err, sentry.IssueTypeFatal, logger.For("metrics"))
		}
	}()

	return server
}

// IncErrorCountAndLog increments the error counter for a component and logs a debug message if a logger is provided.
func IncErrorCountAndLog(component, instance string, err error, logger *zap.SugaredLogger) {
	IncErrorCount(component, instance)

	if logger != nil {
		logger.Debugf("Component %s instance %s failed: %v", component, instance, err)
	}
}

// IncErrorCount increments the error counter for a component.
func IncErrorCount(component, instance string) {
	errorCounter.WithLabelValues(component, instance).Inc()
}

// InitErrorCounter initializes the error counter for a component.
func InitErrorCounter(component, instance string) {
	errorCounter.WithLabelValues(component, instance).Add(0)
}

// ObserveScanTime records the duration of a supervision scan.
func ObserveScanTime(component, instance string, duration time.Duration) {
	scanTime.WithLabelValues(component, instance).Observe(float64(duration.Milliseconds()))
}

// AddStarvationTime increases the starvation counter by the specified seconds.
func AddStarvationTime(seconds float64) {
	starvationSeconds.Add(seconds)
}

func IncMessagesPublished(messageType string) {
	messagesPublished.WithLabelValues(messageType).Inc()
}

func IncMessagesReceived(messageType string) {
	messagesReceived.WithLabelValues(messageType).Inc()
}

func IncCommandRetries(messageType string) {
	commandRetries.WithLabelValues(messageType).Inc()
}

func IncFaults(kind string) {
	faults.WithLabelValues(kind).Inc()
}

func IncStaleAcks(messageType string) {
	staleAcks.WithLabelValues(messageType).Inc()
}

// UpdateInstanceState records the actual and ordered state of an instance.
func UpdateInstanceState(instance, currentState, orderedState string) {
	instanceState.WithLabelValues(instance).Set(GetStateValue(currentState))
	instanceOrderedState.WithLabelValues(instance).Set(GetStateValue(orderedState))
}

// DeleteInstanceState drops the gauges of a removed instance.
func DeleteInstanceState(instance string) {
	instanceState.DeleteLabelValues(instance)
	instanceOrderedState.DeleteLabelValues(instance)
}

// GetStateValue converts a state name to the numeric value used by the state gauges.
func GetStateValue(state string) float64 {
	switch state {
	case "UNINITIALISED":
		return 0
	case "UNINITIALISED2PASSIVE":
		return 1
	case "PASSIVE":
		return 2
	case "PASSIVE2RUNNING":
		return 3
	case "RUNNING":
		return 4
	case "RUNNING2PASSIVE":
		return 5
	case "PASSIVE2UNINITIALISED":
		return 6
	default:
		return -1
	}
}
