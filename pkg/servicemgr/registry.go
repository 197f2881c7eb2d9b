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

package servicemgr

import (
	"fmt"

	"github.com/factorykit/provision-core/pkg/configstore"
)

// Registry maps service type names to their runners. It is populated
// explicitly at startup; there is no import-side-effect registration, so the
// full service surface is visible in one place.
type Registry struct {
	runners map[string]Runner
}

// NewRegistry creates a registry from the given runners, keyed by Name().
func NewRegistry(runners ...Runner) (*Registry, error) {
	byName := make(map[string]Runner, len(runners))
	for _, runner := range runners {
		name := runner.Name()
		if name == "" {
			return nil, fmt.Errorf("runner with empty name")
		}
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("duplicate runner %q", name)
		}
		byName[name] = runner
	}
	return &Registry{runners: byName}, nil
}

// Runner looks up the runner for a service type.
func (r *Registry) Runner(name string) (Runner, bool) {
	runner, ok := r.runners[name]
	return runner, ok
}

// Names returns all registered service type names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.runners))
	for name := range r.runners {
		names = append(names, name)
	}
	return names
}

// Validators exposes each runner's parameter check in the form the
// configuration store consumes.
func (r *Registry) Validators() map[string]configstore.ServiceValidator {
	validators := make(map[string]configstore.ServiceValidator, len(r.runners))
	for name, runner := range r.runners {
		validators[name] = runner.Validate
	}
	return validators
}
