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

package runners

import (
	"context"

	"github.com/factorykit/provision-core/pkg/configstore"
	"github.com/factorykit/provision-core/pkg/envstore"
	"github.com/factorykit/provision-core/pkg/servicemgr"
)

// Dummy is a no-op service type. Declaring it keeps a service name valid in
// the configuration without running anything, which is how a deployment
// disables an optional service while keeping its parameters around.
type Dummy struct{}

func NewDummy() *Dummy { return &Dummy{} }

func (d *Dummy) Name() string { return "dummy" }

func (d *Dummy) Validate(params configstore.ServiceParams) error { return nil }

func (d *Dummy) CreateProcesses(ctx context.Context, cfg *configstore.Configuration, env *envstore.Store) ([]servicemgr.ProcessSpec, error) {
	return nil, nil
}
