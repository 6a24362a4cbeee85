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

package ctxutil

import (
	"context"
	"errors"
	"time"
)

// ErrInsufficientTime indicates not enough time remains before deadline.
var ErrInsufficientTime = errors.New("insufficient time remaining before deadline")

// HasSufficientTime reports whether ctx leaves at least requiredTime before its deadline.
// A context without a deadline always has sufficient time; remaining is then 0.
func HasSufficientTime(ctx context.Context, requiredTime time.Duration) (remaining time.Duration, sufficient bool) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0, true
	}

	remaining = time.Until(deadline)

	return remaining, remaining >= requiredTime
}
