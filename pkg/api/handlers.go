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

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/persistence"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/standarderrors"
)

type elementRequest struct {
	ID              string            `json:"id"`
	Definition      models.Identifier `json:"definition"`
	ParticipantID   models.Identifier `json:"participantId"`
	ParticipantType models.Identifier `json:"participantType"`
	Description     string            `json:"description"`
}

type createInstanceRequest struct {
	ID           string           `json:"id"`
	Name         string           `json:"name" binding:"required"`
	Version      string           `json:"version" binding:"required"`
	Description  string           `json:"description"`
	OrderedState string           `json:"orderedState"`
	Elements     []elementRequest `json:"elements" binding:"required,min=1,dive"`
}

type orderedStateRequest struct {
	OrderedState string `json:"orderedState" binding:"required"`
}

type triggerRequest struct {
	InstanceIDs []string `json:"instanceIds"`
}

type faultsResponse struct {
	Instances    []string            `json:"instances"`
	Participants []models.Identifier `json:"participants"`
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listInstances(c *gin.Context) {
	filter := persistence.InstanceFilter{
		Name:    c.Query("name"),
		Version: c.Query("version"),
	}

	instances, err := s.deps.Store.GetInstances(c.Request.Context(), filter)
	if err != nil {
		s.handleError(c, err)

		return
	}

	c.JSON(http.StatusOK, instances)
}

func (s *Server) getInstance(c *gin.Context) {
	id := c.Param("id")

	instance, err := s.deps.Store.GetInstance(c.Request.Context(), id)
	if errors.Is(err, persistence.ErrNotFound) {
		err = standarderrors.NewNotFoundError("instance", id, err)
	}

	if err != nil {
		s.handleError(c, err)

		return
	}

	c.JSON(http.StatusOK, instance)
}

func (s *Server) createInstance(c *gin.Context) {
	var request createInstanceRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		s.handleInvalidInput(c, err)

		return
	}

	instance := &models.Instance{
		ID:           request.ID,
		Name:         request.Name,
		Version:      request.Version,
		Description:  request.Description,
		OrderedState: models.OrderedState(request.OrderedState),
		Elements:     make(map[string]*models.Element, len(request.Elements)),
	}

	for _, el := range request.Elements {
		if el.ID == "" {
			el.ID = uuid.NewString()
		}

		if _, dup := instance.Elements[el.ID]; dup {
			s.handleInvalidInput(c, fmt.Errorf("duplicate element id %s", el.ID))

			return
		}

		instance.Elements[el.ID] = &models.Element{
			ID:              el.ID,
			Definition:      el.Definition,
			ParticipantID:   el.ParticipantID,
			ParticipantType: el.ParticipantType,
			Description:     el.Description,
		}
	}

	if err := s.deps.Supervisor.CreateInstance(c.Request.Context(), instance); err != nil {
		s.handleError(c, err)

		return
	}

	c.JSON(http.StatusCreated, instance)
}

func (s *Server) deleteInstance(c *gin.Context) {
	id := c.Param("id")

	if err := s.deps.Supervisor.DeleteInstance(c.Request.Context(), id); err != nil {
		s.handleError(c, err)

		return
	}

	s.deps.Statistics.ForgetInstance(id)
	c.Status(http.StatusNoContent)
}

func (s *Server) setOrderedState(c *gin.Context) {
	var request orderedStateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		s.handleInvalidInput(c, err)

		return
	}

	ordered, err := models.ParseOrderedState(request.OrderedState)
	if err != nil {
		s.handleInvalidInput(c, err)

		return
	}

	instance, err := s.deps.Supervisor.SetOrderedState(c.Request.Context(), c.Param("id"), ordered)
	if err != nil {
		s.handleError(c, err)

		return
	}

	c.JSON(http.StatusOK, instance)
}

func (s *Server) instanceStatistics(c *gin.Context) {
	id := c.Param("id")

	if _, err := s.deps.Store.GetInstance(c.Request.Context(), id); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = standarderrors.NewNotFoundError("instance", id, err)
		}

		s.handleError(c, err)

		return
	}

	stats := s.deps.Statistics.ElementStatistics(id)
	if stats == nil {
		stats = []models.ElementStatistics{}
	}

	c.JSON(http.StatusOK, stats)
}

func (s *Server) trigger(c *gin.Context) {
	var request triggerRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		s.handleInvalidInput(c, err)

		return
	}

	if err := s.deps.Supervisor.TriggerControlLoopSupervision(c.Request.Context(), request.InstanceIDs); err != nil {
		s.handleError(c, err)

		return
	}

	c.JSON(http.StatusAccepted, gin.H{"instanceIds": request.InstanceIDs})
}

// check queues a scan without spending retry budget.
func (s *Server) check(c *gin.Context) {
	s.deps.Scans.DoCheck()
	c.Status(http.StatusAccepted)
}

func (s *Server) listParticipants(c *gin.Context) {
	filter := persistence.ParticipantFilter{}

	if raw := c.Query("type"); raw != "" {
		participantType, err := models.ParseIdentifier(raw)
		if err != nil {
			s.handleInvalidInput(c, err)

			return
		}

		filter.ParticipantType = &participantType
	}

	participants, err := s.deps.Store.GetParticipants(c.Request.Context(), filter)
	if err != nil {
		s.handleError(c, err)

		return
	}

	c.JSON(http.StatusOK, participants)
}

func (s *Server) participantStatistics(c *gin.Context) {
	id := models.Identifier{Name: c.Param("name"), Version: c.Param("version")}

	stats, ok := s.deps.Statistics.ParticipantStatistics(id)
	if !ok {
		s.handleError(c, standarderrors.NewNotFoundError("participant statistics", id.String(), nil))

		return
	}

	c.JSON(http.StatusOK, stats)
}

func (s *Server) faults(c *gin.Context) {
	response := faultsResponse{
		Instances:    s.deps.Faults.FaultedInstances(),
		Participants: s.deps.Faults.FaultedParticipants(),
	}

	if response.Instances == nil {
		response.Instances = []string{}
	}

	if response.Participants == nil {
		response.Participants = []models.Identifier{}
	}

	c.JSON(http.StatusOK, response)
}
