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

package configstore

import (
	"errors"
	"strings"
)

var (
	// ErrConfigNotStaged is returned by Activate when the hash was never
	// staged or its resources are missing. Caller error, recoverable.
	ErrConfigNotStaged = errors.New("configuration not staged")

	// ErrNoActiveConfig is returned by GetActive before any configuration
	// has been activated.
	ErrNoActiveConfig = errors.New("no active configuration")
)

// ValidationError collects everything wrong with a submitted document. The
// caller fixes the document and resubmits; nothing is partially applied.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "configuration validation failed: " + strings.Join(e.Issues, "; ")
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
