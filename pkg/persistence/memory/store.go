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

// Package memory is a process-local Store for tests and single-node runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/tiendc/go-deepcopy"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/persistence"
)

var _ persistence.Store = (*Store)(nil)

// Store keeps deep copies so callers can never mutate stored state in place.
type Store struct {
	instances    map[string]*models.Instance
	participants map[models.Identifier]*models.Participant
	mu           sync.RWMutex
}

func NewStore() *Store {
	return &Store{
		instances:    make(map[string]*models.Instance),
		participants: make(map[models.Identifier]*models.Participant),
	}
}

func copyInstance(src *models.Instance) (*models.Instance, error) {
	var dst models.Instance
	if err := deepcopy.Copy(&dst, src); err != nil {
		return nil, fmt.Errorf("failed to copy instance %s: %w", src.ID, err)
	}

	return &dst, nil
}

func copyParticipant(src *models.Participant) (*models.Participant, error) {
	var dst models.Participant
	if err := deepcopy.Copy(&dst, src); err != nil {
		return nil, fmt.Errorf("failed to copy participant %s: %w", src.ID, err)
	}

	return &dst, nil
}

func (s *Store) GetInstances(ctx context.Context, filter persistence.InstanceFilter) ([]*models.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Instance, 0, len(s.instances))

	for _, instance := range s.instances {
		if !filter.Matches(instance) {
			continue
		}

		c, err := copyInstance(instance)
		if err != nil {
			return nil, err
		}

		out = append(out, c)
	}

	persistence.SortInstances(out)

	return out, nil
}

func (s *Store) GetInstance(ctx context.Context, id string) (*models.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	instance, ok := s.instances[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}

	return copyInstance(instance)
}

func (s *Store) SaveInstance(ctx context.Context, instance *models.Instance) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c, err := copyInstance(instance)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.instances[instance.ID] = c

	return nil
}

func (s *Store) DeleteInstance(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.instances, id)

	return nil
}

func (s *Store) GetParticipants(ctx context.Context, filter persistence.ParticipantFilter) ([]*models.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Participant, 0, len(s.participants))

	for _, participant := range s.participants {
		if !filter.Matches(participant) {
			continue
		}

		c, err := copyParticipant(participant)
		if err != nil {
			return nil, err
		}

		out = append(out, c)
	}

	persistence.SortParticipants(out)

	return out, nil
}

func (s *Store) GetParticipant(ctx context.Context, id models.Identifier) (*models.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	participant, ok := s.participants[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}

	return copyParticipant(participant)
}

func (s *Store) SaveParticipant(ctx context.Context, participant *models.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c, err := copyParticipant(participant)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.participants[participant.ID] = c

	return nil
}

func (s *Store) DeleteParticipant(ctx context.Context, id models.Identifier) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.participants, id)

	return nil
}

func (s *Store) Close() error {
	return nil
}
