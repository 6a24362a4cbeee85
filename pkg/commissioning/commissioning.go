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

// Package commissioning looks up the element definitions commissioned for a
// participant type. The runtime only reads them.
package commissioning

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
)

var ErrInvalidDefinition = errors.New("invalid element definition")

// Provider returns the element definitions of a participant type. An unknown
// type has no definitions and is not an error.
type Provider interface {
	GetElementDefinitions(ctx context.Context, participantType models.Identifier) ([]models.ElementDefinition, error)
}

// ValidateDefinitions checks that every definition is named and carries a semver version.
func ValidateDefinitions(definitions []models.ElementDefinition) error {
	var errs []error

	for i, def := range definitions {
		if strings.TrimSpace(def.ID.Name) == "" {
			errs = append(errs, fmt.Errorf("%w: definition %d has no name", ErrInvalidDefinition, i))

			continue
		}

		if _, err := semver.NewVersion(def.ID.Version); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s has version %q: %w", ErrInvalidDefinition, def.ID.Name, def.ID.Version, err))
		}
	}

	return errors.Join(errs...)
}

// StaticProvider serves definitions given at startup, usually from the config file.
type StaticProvider struct {
	definitions map[models.Identifier][]models.ElementDefinition
}

func NewStaticProvider(definitions map[models.Identifier][]models.ElementDefinition) (*StaticProvider, error) {
	copied := make(map[models.Identifier][]models.ElementDefinition, len(definitions))

	for participantType, defs := range definitions {
		if err := ValidateDefinitions(defs); err != nil {
			return nil, fmt.Errorf("participant type %s: %w", participantType, err)
		}

		copied[participantType] = slices.Clone(defs)
	}

	return &StaticProvider{definitions: copied}, nil
}

func (p *StaticProvider) GetElementDefinitions(ctx context.Context, participantType models.Identifier) ([]models.ElementDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return slices.Clone(p.definitions[participantType]), nil
}
