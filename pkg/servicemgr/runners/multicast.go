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
	"net"

	"github.com/factorykit/provision-core/pkg/configstore"
	"github.com/factorykit/provision-core/pkg/envstore"
	"github.com/factorykit/provision-core/pkg/servicemgr"
)

// Multicast pushes the default bundle's resources to many devices at once
// over UFTP, one sender process per resource. Useful when a line of dozens
// of devices pulls the same multi-gigabyte image.
type Multicast struct{}

func NewMulticast() *Multicast { return &Multicast{} }

func (m *Multicast) Name() string { return "multicast" }

func (m *Multicast) Validate(params configstore.ServiceParams) error {
	addr, err := stringParam(params, "mcast_addr", "")
	if err != nil {
		return err
	}
	if addr != "" {
		ip := net.ParseIP(addr)
		if ip == nil || !ip.IsMulticast() {
			return fmt.Errorf("mcast_addr %q is not a multicast address", addr)
		}
	}

	if _, err := stringParam(params, "iface", ""); err != nil {
		return err
	}
	return nil
}

func (m *Multicast) CreateProcesses(ctx context.Context, cfg *configstore.Configuration, env *envstore.Store) ([]servicemgr.ProcessSpec, error) {
	params := cfg.Services[m.Name()]

	addr, err := stringParam(params, "mcast_addr", "230.4.4.1")
	if err != nil {
		return nil, err
	}
	iface, err := stringParam(params, "iface", "")
	if err != nil {
		return nil, err
	}

	bundle := cfg.DefaultBundle()
	if bundle == nil {
		return nil, nil
	}

	var specs []servicemgr.ProcessSpec
	for _, resource := range bundle.Resources {
		command := []string{
			"uftp",
			"-M", addr,
			"-u", "1044",
			"-t", "3",
		}
		if iface != "" {
			command = append(command, "-I", iface)
		}
		command = append(command, env.ResourcePath(resource))

		specs = append(specs, servicemgr.ProcessSpec{
			Name:    "uftp-" + resource,
			Command: command,
		})
	}

	return specs, nil
}
