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

// Package postgres persists instances and participants as JSONB rows.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/persistence"
)

var _ persistence.Store = (*Store)(nil)

const driverName = "pgx"

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS acm_instances (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		version TEXT NOT NULL,
		payload JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS acm_participants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		version TEXT NOT NULL,
		payload JSONB NOT NULL
	)`,
}

type Store struct {
	db *sql.DB
}

// Open connects to dsn and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	openMu.Lock()
	db, err := sqlOpen(driverName, dsn)
	openMu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	return NewWithDB(ctx, db)
}

// NewWithDB wraps an existing handle, e.g. one backed by a test driver.
func NewWithDB(ctx context.Context, db *sql.DB) (*Store, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()

			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

type row struct {
	id      string
	payload []byte
}

// selectRows reads id and payload of a table. The id check is repeated in Go
// so callers never depend on the WHERE clause alone.
func (s *Store) selectRows(ctx context.Context, table string, id string) ([]row, error) {
	query := "SELECT id, payload FROM " + table
	args := []any{}

	if id != "" {
		query += " WHERE id = $1"
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var out []row

	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.payload); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}

		if id != "" && r.id != id {
			continue
		}

		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}

	return out, nil
}

func (s *Store) upsert(ctx context.Context, table, id, name, version string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", table, id, err)
	}

	query := "INSERT INTO " + table + " (id, name, version, payload) VALUES ($1, $2, $3, $4) " +
		"ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, version = EXCLUDED.version, payload = EXCLUDED.payload"

	if _, err := s.db.ExecContext(ctx, query, id, name, version, payload); err != nil {
		return fmt.Errorf("upsert %s %s: %w", table, id, err)
	}

	return nil
}

func (s *Store) remove(ctx context.Context, table, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete %s %s: %w", table, id, err)
	}

	return nil
}

func decodeInstance(r row) (*models.Instance, error) {
	var instance models.Instance
	if err := json.Unmarshal(r.payload, &instance); err != nil {
		return nil, fmt.Errorf("decode instance %s: %w", r.id, err)
	}

	return &instance, nil
}

func decodeParticipant(r row) (*models.Participant, error) {
	var participant models.Participant
	if err := json.Unmarshal(r.payload, &participant); err != nil {
		return nil, fmt.Errorf("decode participant %s: %w", r.id, err)
	}

	return &participant, nil
}

func (s *Store) GetInstances(ctx context.Context, filter persistence.InstanceFilter) ([]*models.Instance, error) {
	rows, err := s.selectRows(ctx, "acm_instances", filter.ID)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Instance, 0, len(rows))

	for _, r := range rows {
		instance, err := decodeInstance(r)
		if err != nil {
			return nil, err
		}

		if filter.Matches(instance) {
			out = append(out, instance)
		}
	}

	persistence.SortInstances(out)

	return out, nil
}

func (s *Store) GetInstance(ctx context.Context, id string) (*models.Instance, error) {
	if id == "" {
		return nil, persistence.ErrNotFound
	}

	rows, err := s.selectRows(ctx, "acm_instances", id)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, persistence.ErrNotFound
	}

	return decodeInstance(rows[0])
}

func (s *Store) SaveInstance(ctx context.Context, instance *models.Instance) error {
	return s.upsert(ctx, "acm_instances", instance.ID, instance.Name, instance.Version, instance)
}

func (s *Store) DeleteInstance(ctx context.Context, id string) error {
	return s.remove(ctx, "acm_instances", id)
}

func (s *Store) GetParticipants(ctx context.Context, filter persistence.ParticipantFilter) ([]*models.Participant, error) {
	rows, err := s.selectRows(ctx, "acm_participants", "")
	if err != nil {
		return nil, err
	}

	out := make([]*models.Participant, 0, len(rows))

	for _, r := range rows {
		participant, err := decodeParticipant(r)
		if err != nil {
			return nil, err
		}

		if filter.Matches(participant) {
			out = append(out, participant)
		}
	}

	persistence.SortParticipants(out)

	return out, nil
}

func (s *Store) GetParticipant(ctx context.Context, id models.Identifier) (*models.Participant, error) {
	rows, err := s.selectRows(ctx, "acm_participants", id.String())
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, persistence.ErrNotFound
	}

	return decodeParticipant(rows[0])
}

func (s *Store) SaveParticipant(ctx context.Context, participant *models.Participant) error {
	return s.upsert(ctx, "acm_participants", participant.ID.String(), participant.ID.Name, participant.ID.Version, participant)
}

func (s *Store) DeleteParticipant(ctx context.Context, id models.Identifier) error {
	return s.remove(ctx, "acm_participants", id.String())
}

