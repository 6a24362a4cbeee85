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

// Package monitoring keeps the statistics participants attach to their status.
package monitoring

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
)

const (
	namespace = "umh"
	subsystem = "acm_participant"
)

type elementKey struct {
	instanceID string
	elementID  string
}

// Recorder holds the latest statistics per participant and per element and
// mirrors the numeric ones into gauges.
type Recorder struct {
	participants map[models.Identifier]models.ParticipantStatistics
	elements     map[elementKey]models.ElementStatistics

	eventCount       *prometheus.GaugeVec
	lastExecution    *prometheus.GaugeVec
	averageExecution *prometheus.GaugeVec
	elementCounter   *prometheus.GaugeVec

	now func() time.Time
	mu  sync.RWMutex
}

// NewRecorder registers the recorder's gauges with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		participants: make(map[models.Identifier]models.ParticipantStatistics),
		elements:     make(map[elementKey]models.ElementStatistics),
		eventCount: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "event_count",
			Help:      "Events handled by a participant as last reported",
		}, []string{"participant"}),
		lastExecution: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_execution_milliseconds",
			Help:      "Duration of the last execution a participant reported",
		}, []string{"participant"}),
		averageExecution: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "average_execution_milliseconds",
			Help:      "Average execution duration a participant reported",
		}, []string{"participant"}),
		elementCounter: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "element_counter",
			Help:      "Participant defined progress counter of an element",
		}, []string{"instance", "element"}),
		now: time.Now,
	}
}

func (r *Recorder) RecordParticipantStatistics(stats models.ParticipantStatistics) {
	if stats.Timestamp.IsZero() {
		stats.Timestamp = r.now()
	}

	r.mu.Lock()
	r.participants[stats.ParticipantID] = stats
	r.mu.Unlock()

	label := stats.ParticipantID.String()
	r.eventCount.WithLabelValues(label).Set(float64(stats.EventCount))
	r.lastExecution.WithLabelValues(label).Set(float64(stats.LastExecutionMs))
	r.averageExecution.WithLabelValues(label).Set(stats.AverageExecutionMs)
}

func (r *Recorder) RecordElementStatistics(stats []models.ElementStatistics) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range stats {
		if s.Timestamp.IsZero() {
			s.Timestamp = now
		}

		r.elements[elementKey{instanceID: s.InstanceID, elementID: s.ElementID}] = s
		r.elementCounter.WithLabelValues(s.InstanceID, s.ElementID).Set(float64(s.Counter))
	}
}

// ParticipantStatistics returns the last statistics of participant.
func (r *Recorder) ParticipantStatistics(participant models.Identifier) (models.ParticipantStatistics, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats, ok := r.participants[participant]

	return stats, ok
}

// AllParticipantStatistics returns the last statistics of every participant, sorted by participant.
func (r *Recorder) AllParticipantStatistics() []models.ParticipantStatistics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ParticipantStatistics, 0, len(r.participants))
	for _, stats := range r.participants {
		out = append(out, stats)
	}

	slices.SortFunc(out, func(a, b models.ParticipantStatistics) int {
		return cmp.Compare(a.ParticipantID.String(), b.ParticipantID.String())
	})

	return out
}

// ElementStatistics returns the last statistics of the elements of instanceID, sorted by element.
// An empty instanceID returns all elements.
func (r *Recorder) ElementStatistics(instanceID string) []models.ElementStatistics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.ElementStatistics

	for key, stats := range r.elements {
		if instanceID == "" || key.instanceID == instanceID {
			out = append(out, stats)
		}
	}

	slices.SortFunc(out, func(a, b models.ElementStatistics) int {
		return cmp.Or(cmp.Compare(a.InstanceID, b.InstanceID), cmp.Compare(a.ElementID, b.ElementID))
	})

	return out
}

// ForgetInstance drops the element statistics and gauges of a deleted instance.
func (r *Recorder) ForgetInstance(instanceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.elements {
		if key.instanceID == instanceID {
			delete(r.elements, key)
			r.elementCounter.DeleteLabelValues(key.instanceID, key.elementID)
		}
	}
}
