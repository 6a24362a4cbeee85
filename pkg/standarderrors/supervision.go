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

package standarderrors

import (
	"errors"
	"fmt"
)

// ValidationError is returned when a request is rejected before any state is touched,
// e.g. an empty id list or an unknown ordered state. It is never retried.
type ValidationError struct {
	Operation string
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Operation, e.Reason)
}

// NewValidationError creates a ValidationError for operation with a formatted reason.
func NewValidationError(operation string, format string, args ...interface{}) error {
	return &ValidationError{Operation: operation, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError is returned when an instance or participant does not exist.
type NotFoundError struct {
	Kind string
	ID   string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a NotFoundError, keeping the store's error as cause.
func NewNotFoundError(kind string, id string, cause error) error {
	return &NotFoundError{Kind: kind, ID: id, Err: cause}
}

// IsValidation reports whether err contains a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err contains a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
