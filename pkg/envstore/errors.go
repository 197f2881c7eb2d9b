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

package envstore

import "errors"

var (
	// ErrEnvironmentCorrupt is returned by Init when the on-disk layout is
	// incompatible with what this server expects. It is fatal at startup and
	// requires manual repair.
	ErrEnvironmentCorrupt = errors.New("environment corrupt")

	// ErrResourceCollision is returned when a resource is added under a name
	// that already exists with different content. Resource names embed a
	// content hash, so this only happens on hash collision or tampering.
	ErrResourceCollision = errors.New("resource name collision")

	// ErrConfigNotMaterialized is returned by SwapActiveConfig when the
	// configuration document for the given hash is not on disk.
	ErrConfigNotMaterialized = errors.New("configuration document not materialized")
)
