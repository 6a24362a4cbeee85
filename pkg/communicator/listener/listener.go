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

// Package listener routes inbound participant messages to the supervision handler.
package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/backoff"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/communicator/encoding"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/constants"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/metrics"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/sentry"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/standarderrors"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/transport"
)

// Handler is the supervision side of every inbound message type.
type Handler interface {
	HandleParticipantRegister(ctx context.Context, msg *models.ParticipantRegister) error
	HandleParticipantDeregister(ctx context.Context, msg *models.ParticipantDeregister) error
	HandleParticipantStatusMessage(ctx context.Context, msg *models.ParticipantStatus) error
	HandleControlLoopAck(ctx context.Context, msg *models.ControlLoopAck) error
	HandleParticipantUpdateAck(ctx context.Context, msg *models.ParticipantUpdateAck) error
}

// StatusObserver is told about every participant that sent a status.
type StatusObserver interface {
	HandleParticipantStatus(participant models.Identifier)
}

type Listener struct {
	bus      transport.Bus
	handler  Handler
	observer StatusObserver
	sub      transport.Subscription
	log      *zap.SugaredLogger
	topic    string
	timeout  time.Duration
	mu       sync.Mutex
}

func New(bus transport.Bus, topic string, handler Handler, observer StatusObserver, log *zap.SugaredLogger) *Listener {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Listener{
		bus:      bus,
		topic:    topic,
		handler:  handler,
		observer: observer,
		log:      log,
		timeout:  constants.MessageHandlingTimeout,
	}
}

// Start subscribes to the runtime topic. Calling it twice is a no-op.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sub != nil {
		return nil
	}

	sub, err := l.bus.Subscribe(l.topic, func(payload []byte) {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()

		l.Dispatch(ctx, payload)
	})
	if err != nil {
		return err
	}

	l.sub = sub
	l.log.Infof("Listening for participant messages on %s", l.topic)

	return nil
}

func (l *Listener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sub == nil {
		return nil
	}

	err := l.sub.Unsubscribe()
	l.sub = nil

	return err
}

// Dispatch decodes payload and hands it to the matching handler function.
// Malformed and unexpected messages are dropped at debug level.
func (l *Listener) Dispatch(ctx context.Context, payload []byte) {
	messageType, msg, err := decode(payload)
	if err != nil {
		l.report(messageType, err)

		return
	}

	l.report(messageType, l.route(ctx, msg))
}

// decode only fails with ignored errors.
func decode(payload []byte) (models.MessageType, models.Message, error) {
	messageType, err := encoding.DecodeType(payload)
	if err != nil {
		return "", nil, backoff.NewIgnoredError(fmt.Errorf("undecodable message: %w", err))
	}

	if !messageType.FromParticipant() {
		return messageType, nil, backoff.NewIgnoredError(fmt.Errorf("%s is not addressed to the runtime", messageType))
	}

	msg, err := encoding.Decode(payload)
	if err != nil {
		return messageType, nil, backoff.NewIgnoredError(fmt.Errorf("malformed %s: %w", messageType, err))
	}

	metrics.IncMessagesReceived(string(messageType))

	if msg.Header().ParticipantID == nil {
		return messageType, nil, backoff.NewIgnoredError(fmt.Errorf("%s without participantId", messageType))
	}

	return messageType, msg, nil
}

func (l *Listener) route(ctx context.Context, msg models.Message) error {
	switch m := msg.(type) {
	case *models.ParticipantRegister:
		return l.handler.HandleParticipantRegister(ctx, m)
	case *models.ParticipantDeregister:
		return l.handler.HandleParticipantDeregister(ctx, m)
	case *models.ParticipantStatus:
		if l.observer != nil {
			l.observer.HandleParticipantStatus(*m.ParticipantID)
		}

		return l.handler.HandleParticipantStatusMessage(ctx, m)
	case *models.ControlLoopAck:
		return l.handler.HandleControlLoopAck(ctx, m)
	case *models.ParticipantUpdateAck:
		return l.handler.HandleParticipantUpdateAck(ctx, m)
	default:
		l.log.Debugf("No route for %T", msg)

		return nil
	}
}

func (l *Listener) report(messageType models.MessageType, err error) {
	if err == nil {
		return
	}

	if backoff.IsIgnoredError(err) {
		l.log.Debugf("Dropping message: %v", err)

		return
	}

	metrics.IncErrorCount(metrics.ComponentListener, string(messageType))

	switch {
	case standarderrors.IsValidation(err), standarderrors.IsNotFound(err):
		l.log.Warnf("Rejected %s: %v", messageType, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		l.log.Warnf("Handling %s did not finish in time: %v", messageType, err)
	default:
		sentry.ReportMessageErrorf(l.log, string(messageType), "handle_message", "failed to handle %s: %v", messageType, err)
	}
}
