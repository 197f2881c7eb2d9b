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

// Package servicemgr supervises the auxiliary services a configuration
// declares: it diffs the declared set against the running set, starts and
// stops OS processes accordingly, and restarts crashed processes within a
// bounded policy.
package servicemgr

import (
	"context"

	"github.com/factorykit/provision-core/pkg/configstore"
	"github.com/factorykit/provision-core/pkg/envstore"
)

// ProcessSpec describes one OS process a runner wants supervised. Command is
// the full argv; the first element is the executable path.
type ProcessSpec struct {
	// Name distinguishes multiple processes of one service. It must be
	// unique within the service.
	Name string

	Command []string

	// Env entries are appended to the parent environment, KEY=VALUE form.
	Env []string

	// Dir is the working directory. Empty means inherit.
	Dir string
}

// Runner is the capability a service type implements. Runners are pure
// factories: they validate parameters and describe processes, they never
// touch process state themselves.
type Runner interface {
	// Name returns the service type name as it appears in the
	// configuration's services map.
	Name() string

	// Validate checks the parameter object for this service type. It is
	// called during configuration validation, before anything is staged.
	Validate(params configstore.ServiceParams) error

	// CreateProcesses maps the active configuration onto the processes
	// this service needs. An empty slice means the service is declared
	// but currently needs no process (a disabled toggle, for instance).
	CreateProcesses(ctx context.Context, cfg *configstore.Configuration, env *envstore.Store) ([]ProcessSpec, error)
}
