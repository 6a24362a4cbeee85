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

package sentry

import (
	"context"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ = Describe("SentryHook", func() {
	var (
		hook   *SentryHook
		events *eventStore
		logger *zap.Logger
	)

	BeforeEach(func() {
		events = &eventStore{}

		err := sentry.Init(sentry.ClientOptions{
			Dsn:       "https://test@sentry.io/123",
			Transport: &mockTransport{store: events},
		})
		Expect(err).NotTo(HaveOccurred())

		core := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(&discardWriter{}),
			zapcore.DebugLevel,
		)

		hook = NewSentryHook(core)
		logger = zap.New(hook).Named("SupervisionScanner")
	})

	AfterEach(func() {
		sentry.Flush(time.Second)
		time.Sleep(50 * time.Millisecond)
	})

	It("captures warnings with component and fingerprint fields", func() {
		logger.Warn("instance faulted",
			zap.String("operation", "retry"),
			zap.String("supervised_kind", "instance"),
			zap.Int("retries", 5),
		)

		Eventually(events.Len, time.Second, 10*time.Millisecond).Should(Equal(1))

		event := events.GetAll()[0]
		Expect(event.Message).To(Equal("instance faulted"))
		Expect(event.Level).To(Equal(sentry.LevelWarning))
		Expect(event.Tags).To(HaveKeyWithValue("component", "SupervisionScanner"))
		Expect(event.Tags).To(HaveKeyWithValue("retries", "5"))
		Expect(event.Fingerprint).To(ContainElement("operation: retry"))
		Expect(event.Fingerprint).To(ContainElement("supervised_kind: instance"))
	})

	It("does not capture info logs", func() {
		logger.Info("scan finished")

		Consistently(events.Len, 100*time.Millisecond, 10*time.Millisecond).Should(Equal(0))
	})

	It("keeps wrapping cores created via With", func() {
		_, ok := hook.With([]zapcore.Field{zap.String("component", "test")}).(*SentryHook)
		Expect(ok).To(BeTrue())
	})
})

type eventStore struct {
	events []*sentry.Event
	mutex  sync.Mutex
}

func (s *eventStore) Add(event *sentry.Event) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.events = append(s.events, event)
}

func (s *eventStore) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return len(s.events)
}

func (s *eventStore) GetAll() []*sentry.Event {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	result := make([]*sentry.Event, len(s.events))
	copy(result, s.events)

	return result
}

type mockTransport struct {
	store *eventStore
}

func (t *mockTransport) Configure(options sentry.ClientOptions)    {}
func (t *mockTransport) Flush(timeout time.Duration) bool          { return true }
func (t *mockTransport) FlushWithContext(ctx context.Context) bool { return true }
func (t *mockTransport) Close()                                    {}

func (t *mockTransport) SendEvent(event *sentry.Event) {
	t.store.Add(event)
}

type discardWriter struct{}

func (d *discardWriter) Write(p []byte) (n int, err error) {
	return len(p), nil
}

func (d *discardWriter) Sync() error {
	return nil
}
