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

// Package natsbus is the production Bus on top of NATS core subjects.
package natsbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/backoff"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/constants"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/transport"
)

var _ transport.Bus = (*Bus)(nil)

type Config struct {
	URL           string
	ClientName    string
	ReconnectWait time.Duration
	MaxRetries    uint64
}

type Bus struct {
	nc  *nats.Conn
	log *zap.SugaredLogger
}

// Options returns the connection options used by Connect.
func Options(cfg Config, log *zap.SugaredLogger) []nats.Option {
	name := cfg.ClientName
	if name == "" {
		name = constants.DefaultClientName
	}

	wait := cfg.ReconnectWait
	if wait <= 0 {
		wait = 2 * time.Second
	}

	return []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(wait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}

			log.Errorf("NATS async error on %q: %v", subject, err)
		}),
	}
}

// Connect dials NATS, retrying with exponential backoff.
func Connect(ctx context.Context, cfg Config, log *zap.SugaredLogger) (*Bus, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	url := cfg.URL
	if url == "" {
		url = constants.DefaultNATSURL
	}

	retries := cfg.MaxRetries
	if retries == 0 {
		retries = constants.ConnectMaxRetries
	}

	var nc *nats.Conn

	err := backoff.RetryWithBackoff(ctx, backoff.DefaultRetryConfig(retries), "nats connect", func() error {
		conn, err := nats.Connect(url, Options(cfg, log)...)
		if err != nil {
			return err
		}

		nc = conn

		return nil
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	log.Infof("Connected to NATS at %s", nc.ConnectedUrl())

	return &Bus{nc: nc, log: log}, nil
}

func (b *Bus) Publish(_ context.Context, topic string, payload []byte) error {
	if b.nc == nil || b.nc.IsClosed() {
		return transport.ErrClosed
	}

	return b.nc.Publish(topic, payload)
}

func (b *Bus) Subscribe(topic string, handler transport.Handler) (transport.Subscription, error) {
	if b.nc == nil || b.nc.IsClosed() {
		return nil, transport.ErrClosed
	}

	sub, err := b.nc.Subscribe(topic, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	return sub, nil
}

// Close drains pending messages; the connection closes once the drain completes.
func (b *Bus) Close() error {
	if b.nc == nil || b.nc.IsClosed() {
		return nil
	}

	if err := b.nc.Drain(); err != nil {
		b.log.Warnf("NATS drain failed, closing: %v", err)
		b.nc.Close()
	}

	return nil
}
