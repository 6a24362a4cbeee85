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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/metrics"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/standarderrors"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/supervision"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case standarderrors.IsValidation(err):
		return http.StatusBadRequest
	case standarderrors.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, supervision.ErrInstanceExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleError(c *gin.Context, err error) {
	status := statusFor(err)

	if status == http.StatusInternalServerError {
		metrics.IncErrorCountAndLog(metrics.ComponentAPI, c.FullPath(), err, s.log)
		s.log.Errorw("Internal server error", "path", c.FullPath(), "error", err)
	}

	c.AbortWithStatusJSON(status, gin.H{
		"error":  err.Error(),
		"status": status,
	})
}

func (s *Server) handleInvalidInput(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   err.Error(),
		"status":  http.StatusBadRequest,
		"message": "You have provided a wrong input. Please check your parameters.",
	})
}
