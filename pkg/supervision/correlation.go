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

package supervision

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/united-manufacturing-hub/expiremap/v2/pkg/expiremap"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/constants"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
)

// Outcome is what the tracker decided about an ack.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	// OutcomeUnknown: no command with that id, or it expired.
	OutcomeUnknown
	// OutcomeSuperseded: a newer command was sent to the same participant.
	OutcomeSuperseded
	// OutcomeDuplicate: this participant already acked the command.
	OutcomeDuplicate
	// OutcomeMismatch: the ack does not fit the command (kind, instance or participant).
	OutcomeMismatch
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeUnknown:
		return "unknown"
	case OutcomeSuperseded:
		return "superseded"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeMismatch:
		return "mismatch"
	default:
		return "invalid"
	}
}

// Command is a message sent to participants that expects an ack.
type Command struct {
	IssuedAt   time.Time
	pending    map[models.Identifier]struct{}
	acked      map[models.Identifier]struct{}
	superseded map[models.Identifier]struct{}
	InstanceID string
	Kind       models.MessageType
	Target     models.State
	MessageID  uuid.UUID
}

func (c *Command) open() bool {
	return len(c.pending) > 0
}

// Tracker correlates acks with the commands they answer. Entries expire after
// the configured TTL, after which late acks count as unknown.
type Tracker struct {
	commands *expiremap.ExpireMap[uuid.UUID, *Command]
	mu       sync.Mutex
}

func NewTracker(ttl time.Duration) *Tracker {
	return &Tracker{
		commands: expiremap.NewEx[uuid.UUID, *Command](constants.CommandCullInterval, ttl),
	}
}

// ackKind maps an ack type to the command type it answers.
func ackKind(ackType models.MessageType) (models.MessageType, bool) {
	switch ackType {
	case models.MessageTypeUpdateAck:
		return models.MessageTypeUpdate, true
	case models.MessageTypeStateChangeAck:
		return models.MessageTypeStateChange, true
	case models.MessageTypeParticipantUpdateAck:
		return models.MessageTypeParticipantUpdate, true
	default:
		return "", false
	}
}

// Issue records a command sent to participants. Any older command of the same
// instance that still waits for one of these participants stops waiting for it.
func (t *Tracker) Issue(messageID uuid.UUID, instanceID string, kind models.MessageType, target models.State, participants []models.Identifier) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cmd := &Command{
		MessageID:  messageID,
		InstanceID: instanceID,
		Kind:       kind,
		Target:     target,
		IssuedAt:   time.Now(),
		pending:    make(map[models.Identifier]struct{}, len(participants)),
		acked:      make(map[models.Identifier]struct{}),
		superseded: make(map[models.Identifier]struct{}),
	}

	for _, p := range participants {
		cmd.pending[p] = struct{}{}
	}

	t.commands.Range(func(_ uuid.UUID, older *Command) bool {
		if older.InstanceID != instanceID || older.Kind != kind {
			return true
		}

		for p := range cmd.pending {
			if _, waiting := older.pending[p]; waiting {
				delete(older.pending, p)
				older.superseded[p] = struct{}{}
			}
		}

		return true
	})

	t.commands.Set(messageID, cmd)
}

// Accept checks an ack against its command and, when it fits, marks the
// participant as done. The command's target state is returned with OutcomeAccepted.
func (t *Tracker) Accept(responseTo uuid.UUID, ackType models.MessageType, instanceID string, participant models.Identifier) (models.State, Outcome) {
	kind, ok := ackKind(ackType)
	if !ok {
		return "", OutcomeMismatch
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	loaded, ok := t.commands.Load(responseTo)
	if !ok {
		return "", OutcomeUnknown
	}

	cmd := *loaded

	if cmd.Kind != kind || cmd.InstanceID != instanceID {
		return "", OutcomeMismatch
	}

	if _, done := cmd.acked[participant]; done {
		return "", OutcomeDuplicate
	}

	if _, replaced := cmd.superseded[participant]; replaced {
		return "", OutcomeSuperseded
	}

	if _, waiting := cmd.pending[participant]; !waiting {
		return "", OutcomeMismatch
	}

	delete(cmd.pending, participant)
	cmd.acked[participant] = struct{}{}

	return cmd.Target, OutcomeAccepted
}

// Close stops waiting for any ack of instanceID's commands, e.g. once it settled.
func (t *Tracker) Close(instanceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.commands.Range(func(_ uuid.UUID, cmd *Command) bool {
		if cmd.InstanceID != instanceID {
			return true
		}

		for p := range cmd.pending {
			delete(cmd.pending, p)
			cmd.superseded[p] = struct{}{}
		}

		return true
	})
}

// Outstanding returns how many commands of instanceID still wait for an ack.
func (t *Tracker) Outstanding(instanceID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0

	t.commands.Range(func(_ uuid.UUID, cmd *Command) bool {
		if cmd.InstanceID == instanceID && cmd.open() {
			n++
		}

		return true
	})

	return n
}
