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
	"fmt"
	"net/url"

	"github.com/factorykit/provision-core/pkg/configstore"
	"github.com/factorykit/provision-core/pkg/envstore"
	"github.com/factorykit/provision-core/pkg/servicemgr"
)

// ShopFloorProxy configures the device-facing bridge to the factory's shop
// floor backend. The bridge runs in-process, so this runner spawns nothing;
// it exists to validate the backend settings during configuration validation
// and to make the dependency visible in the services map.
type ShopFloorProxy struct{}

func NewShopFloorProxy() *ShopFloorProxy { return &ShopFloorProxy{} }

func (s *ShopFloorProxy) Name() string { return "shopfloor_proxy" }

func (s *ShopFloorProxy) Validate(params configstore.ServiceParams) error {
	backend, err := requireString(params, "backend_url")
	if err != nil {
		return err
	}

	parsed, err := url.Parse(backend)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("backend_url %q is not a valid URL", backend)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("backend_url scheme %q is not supported", parsed.Scheme)
	}

	if _, err := boolParam(params, "report_test_results", true); err != nil {
		return err
	}

	return nil
}

func (s *ShopFloorProxy) CreateProcesses(ctx context.Context, cfg *configstore.Configuration, env *envstore.Store) ([]servicemgr.ProcessSpec, error) {
	return nil, nil
}
