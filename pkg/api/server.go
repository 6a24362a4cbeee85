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

// Package api serves the operator REST interface of the runtime.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/persistence"
)

// Supervisor is the part of supervision.Handler the API drives.
type Supervisor interface {
	TriggerControlLoopSupervision(ctx context.Context, ids []string) error
	CreateInstance(ctx context.Context, instance *models.Instance) error
	SetOrderedState(ctx context.Context, id string, ordered models.OrderedState) (*models.Instance, error)
	DeleteInstance(ctx context.Context, id string) error
}

// Scans requests scans from the supervision aspect.
type Scans interface {
	DoCheck()
}

// Statistics reads what monitoring.Recorder collected.
type Statistics interface {
	ParticipantStatistics(participant models.Identifier) (models.ParticipantStatistics, bool)
	ElementStatistics(instanceID string) []models.ElementStatistics
	ForgetInstance(instanceID string)
}

// Faults lists what ran out of retries.
type Faults interface {
	FaultedInstances() []string
	FaultedParticipants() []models.Identifier
}

type Dependencies struct {
	Store      persistence.Store
	Supervisor Supervisor
	Scans      Scans
	Statistics Statistics
	Faults     Faults
}

type Server struct {
	deps   Dependencies
	engine *gin.Engine
	log    *zap.SugaredLogger
}

func NewServer(deps Dependencies, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	s := &Server{
		deps:   deps,
		engine: gin.New(),
		log:    log,
	}

	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.routes()

	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.healthz)

	v1 := s.engine.Group("/api/v1")

	instances := v1.Group("/instances")
	instances.GET("", s.listInstances)
	instances.POST("", s.createInstance)
	instances.GET("/:id", s.getInstance)
	instances.DELETE("/:id", s.deleteInstance)
	instances.PUT("/:id/orderedstate", s.setOrderedState)
	instances.GET("/:id/statistics", s.instanceStatistics)

	supervision := v1.Group("/supervision")
	supervision.POST("/trigger", s.trigger)
	supervision.POST("/check", s.check)

	participants := v1.Group("/participants")
	participants.GET("", s.listParticipants)
	participants.GET("/:name/:version/statistics", s.participantStatistics)

	v1.GET("/faults", s.faults)
}

// Handler returns the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		s.log.Infof("API listening on %s", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		s.log.Debugw("API request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
