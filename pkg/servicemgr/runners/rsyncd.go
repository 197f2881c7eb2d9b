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
	"path/filepath"

	"github.com/factorykit/provision-core/pkg/configstore"
	"github.com/factorykit/provision-core/pkg/constants"
	"github.com/factorykit/provision-core/pkg/envstore"
	"github.com/factorykit/provision-core/pkg/servicemgr"
)

// Rsyncd serves the resource and parameter directories read-only to devices
// over the rsync protocol. The daemon configuration is regenerated on every
// start so it always reflects the current environment layout.
type Rsyncd struct{}

func NewRsyncd() *Rsyncd { return &Rsyncd{} }

func (r *Rsyncd) Name() string { return "rsyncd" }

func (r *Rsyncd) Validate(params configstore.ServiceParams) error {
	port, err := stringParam(params, "port", "")
	if err != nil {
		return err
	}
	if port != "" {
		var n int
		if _, err := fmt.Sscanf(port, "%d", &n); err != nil || n < 1 || n > 65535 {
			return fmt.Errorf("port %q is not a valid TCP port", port)
		}
	}
	return nil
}

func (r *Rsyncd) CreateProcesses(ctx context.Context, cfg *configstore.Configuration, env *envstore.Store) ([]servicemgr.ProcessSpec, error) {
	params := cfg.Services[r.Name()]

	port, err := stringParam(params, "port", "873")
	if err != nil {
		return nil, err
	}

	confPath := filepath.Join(env.RunDir(), "rsyncd.conf")
	conf := fmt.Sprintf(`pid file = %s
use chroot = no
read only = yes

[resources]
  path = %s

[parameters]
  path = %s
`,
		filepath.Join(env.RunDir(), "rsyncd.pid"),
		env.ResourcesDir(),
		env.ParametersDir(),
	)

	if err := env.FS().WriteFile(ctx, confPath, []byte(conf), constants.EnvFilePerm); err != nil {
		return nil, fmt.Errorf("failed to write rsyncd configuration: %w", err)
	}

	return []servicemgr.ProcessSpec{{
		Name: "rsyncd",
		Command: []string{
			"rsync",
			"--daemon",
			"--no-detach",
			"--port=" + port,
			"--config=" + confPath,
		},
	}}, nil
}
