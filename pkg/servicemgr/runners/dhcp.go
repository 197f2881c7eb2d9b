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

// DHCP hands out addresses to devices on the shop-floor network segment. It
// supervises one dnsmasq in DHCP-only mode.
type DHCP struct{}

func NewDHCP() *DHCP { return &DHCP{} }

func (d *DHCP) Name() string { return "dhcp" }

func (d *DHCP) Validate(params configstore.ServiceParams) error {
	if _, err := requireString(params, "iface"); err != nil {
		return err
	}

	start, err := requireString(params, "range_start")
	if err != nil {
		return err
	}
	end, err := requireString(params, "range_end")
	if err != nil {
		return err
	}
	if net.ParseIP(start) == nil {
		return fmt.Errorf("range_start %q is not an IP address", start)
	}
	if net.ParseIP(end) == nil {
		return fmt.Errorf("range_end %q is not an IP address", end)
	}

	if _, err := stringParam(params, "netmask", ""); err != nil {
		return err
	}

	return nil
}

func (d *DHCP) CreateProcesses(ctx context.Context, cfg *configstore.Configuration, env *envstore.Store) ([]servicemgr.ProcessSpec, error) {
	params := cfg.Services[d.Name()]

	iface, err := requireString(params, "iface")
	if err != nil {
		return nil, err
	}
	start, err := requireString(params, "range_start")
	if err != nil {
		return nil, err
	}
	end, err := requireString(params, "range_end")
	if err != nil {
		return nil, err
	}
	netmask, err := stringParam(params, "netmask", "255.255.255.0")
	if err != nil {
		return nil, err
	}

	return []servicemgr.ProcessSpec{{
		Name: "dnsmasq",
		Command: []string{
			"dnsmasq",
			"--keep-in-foreground",
			"--port=0", // DHCP only, no DNS
			"--interface=" + iface,
			fmt.Sprintf("--dhcp-range=%s,%s,%s", start, end, netmask),
			"--dhcp-leasefile=" + env.RunDir() + "/dnsmasq.leases",
		},
	}}, nil
}
