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

package models

import (
	"fmt"
	"strings"
)

// Identifier names a versioned concept: a participant, a participant type or an element definition.
type Identifier struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

// String renders the identifier as name:version.
func (i Identifier) String() string {
	return i.Name + ":" + i.Version
}

// IsZero reports whether neither name nor version is set.
func (i Identifier) IsZero() bool {
	return i.Name == "" && i.Version == ""
}

// ParseIdentifier parses the name:version form produced by String.
func ParseIdentifier(s string) (Identifier, error) {
	idx := strings.LastIndex(s, ":")
	if idx <= 0 || idx == len(s)-1 {
		return Identifier{}, fmt.Errorf("invalid identifier %q, expected name:version", s)
	}

	return Identifier{Name: s[:idx], Version: s[idx+1:]}, nil
}
