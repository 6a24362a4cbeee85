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

// Package persistence declares how the supervision core loads and saves
// instances and participants. Backends live in the subpackages.
package persistence

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
)

// ErrNotFound is returned by single-item lookups. List lookups return an empty slice instead.
var ErrNotFound = errors.New("not found")

// InstanceFilter selects instances. Empty fields match everything.
type InstanceFilter struct {
	ID      string
	Name    string
	Version string
}

func (f InstanceFilter) Matches(i *models.Instance) bool {
	if f.ID != "" && f.ID != i.ID {
		return false
	}

	if f.Name != "" && f.Name != i.Name {
		return false
	}

	return f.Version == "" || f.Version == i.Version
}

// ParticipantFilter selects participants. Empty fields match everything.
type ParticipantFilter struct {
	ParticipantType *models.Identifier
	Name            string
	Version         string
}

func (f ParticipantFilter) Matches(p *models.Participant) bool {
	if f.Name != "" && f.Name != p.ID.Name {
		return false
	}

	if f.Version != "" && f.Version != p.ID.Version {
		return false
	}

	return f.ParticipantType == nil || *f.ParticipantType == p.ParticipantType
}

type InstanceStore interface {
	GetInstances(ctx context.Context, filter InstanceFilter) ([]*models.Instance, error)
	// GetInstance returns ErrNotFound for unknown ids.
	GetInstance(ctx context.Context, id string) (*models.Instance, error)
	SaveInstance(ctx context.Context, instance *models.Instance) error
	// DeleteInstance is a no-op for unknown ids.
	DeleteInstance(ctx context.Context, id string) error
}

type ParticipantStore interface {
	GetParticipants(ctx context.Context, filter ParticipantFilter) ([]*models.Participant, error)
	// GetParticipant returns ErrNotFound for unknown ids.
	GetParticipant(ctx context.Context, id models.Identifier) (*models.Participant, error)
	SaveParticipant(ctx context.Context, participant *models.Participant) error
	// DeleteParticipant is a no-op for unknown ids.
	DeleteParticipant(ctx context.Context, id models.Identifier) error
}

// Store is what a backend provides.
type Store interface {
	InstanceStore
	ParticipantStore
	Close() error
}

// SortInstances orders instances by id so every backend lists them the same way.
func SortInstances(instances []*models.Instance) {
	slices.SortFunc(instances, func(a, b *models.Instance) int {
		return strings.Compare(a.ID, b.ID)
	})
}

// SortParticipants orders participants by name:version.
func SortParticipants(participants []*models.Participant) {
	slices.SortFunc(participants, func(a, b *models.Participant) int {
		return strings.Compare(a.ID.String(), b.ID.String())
	})
}
