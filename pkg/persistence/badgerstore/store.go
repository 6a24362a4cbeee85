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

// Package badgerstore persists instances and participants in an embedded Badger database.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/persistence"
)

var _ persistence.Store = (*Store)(nil)

const (
	instancePrefix    = "instance:"
	participantPrefix = "participant:"
)

type Store struct {
	db *badger.DB
}

// Open opens (or creates) the database under path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(filepath.Clean(path)).
		WithLogger(nil).
		WithValueLogFileSize(1 << 24)

	return OpenWithOptions(opts)
}

// OpenWithOptions is used by tests to run badger in memory.
func OpenWithOptions(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func instanceKey(id string) []byte {
	return []byte(instancePrefix + id)
}

func participantKey(id models.Identifier) []byte {
	return []byte(participantPrefix + id.String())
}

func (s *Store) put(ctx context.Context, key []byte, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

func (s *Store) get(ctx context.Context, key []byte, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return persistence.ErrNotFound
		}

		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
}

func (s *Store) remove(ctx context.Context, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// scan decodes every value under prefix with decode.
func (s *Store) scan(ctx context.Context, prefix string, decode func([]byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := it.Item().Value(decode); err != nil {
				return fmt.Errorf("failed to decode %s: %w", it.Item().Key(), err)
			}
		}

		return nil
	})
}

func (s *Store) GetInstances(ctx context.Context, filter persistence.InstanceFilter) ([]*models.Instance, error) {
	out := make([]*models.Instance, 0)

	err := s.scan(ctx, instancePrefix, func(val []byte) error {
		var instance models.Instance
		if err := json.Unmarshal(val, &instance); err != nil {
			return err
		}

		if filter.Matches(&instance) {
			out = append(out, &instance)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	persistence.SortInstances(out)

	return out, nil
}

func (s *Store) GetInstance(ctx context.Context, id string) (*models.Instance, error) {
	var instance models.Instance
	if err := s.get(ctx, instanceKey(id), &instance); err != nil {
		return nil, err
	}

	return &instance, nil
}

func (s *Store) SaveInstance(ctx context.Context, instance *models.Instance) error {
	return s.put(ctx, instanceKey(instance.ID), instance)
}

func (s *Store) DeleteInstance(ctx context.Context, id string) error {
	return s.remove(ctx, instanceKey(id))
}

func (s *Store) GetParticipants(ctx context.Context, filter persistence.ParticipantFilter) ([]*models.Participant, error) {
	out := make([]*models.Participant, 0)

	err := s.scan(ctx, participantPrefix, func(val []byte) error {
		var participant models.Participant
		if err := json.Unmarshal(val, &participant); err != nil {
			return err
		}

		if filter.Matches(&participant) {
			out = append(out, &participant)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	persistence.SortParticipants(out)

	return out, nil
}

func (s *Store) GetParticipant(ctx context.Context, id models.Identifier) (*models.Participant, error) {
	var participant models.Participant
	if err := s.get(ctx, participantKey(id), &participant); err != nil {
		return nil, err
	}

	return &participant, nil
}

func (s *Store) SaveParticipant(ctx context.Context, participant *models.Participant) error {
	return s.put(ctx, participantKey(participant.ID), participant)
}

func (s *Store) DeleteParticipant(ctx context.Context, id models.Identifier) error {
	return s.remove(ctx, participantKey(id))
}
