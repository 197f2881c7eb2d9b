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

package constants

const (
	// DefaultEnvironmentRoot is where the provisioning environment lives
	// unless the bootstrap config points somewhere else.
	DefaultEnvironmentRoot = "/var/db/factory/provision"

	// Environment layout entries relative to the environment root.
	EnvBinDir         = "bin"
	EnvResourcesDir   = "resources"
	EnvParametersDir  = "parameters"
	EnvConfigDir      = "conf"
	EnvRunDir         = "run"
	EnvVersionMarker  = ".version"
	EnvActivePointer  = "active_config"
	EnvParametersFile = "parameters.json"

	// EnvFilePerm is the permission applied to files written into the
	// environment. Resources are world-readable so rsync/http services can
	// serve them without privilege tricks.
	EnvFilePerm = 0644

	// EnvDirPerm is the permission applied to environment directories.
	EnvDirPerm = 0755
)
