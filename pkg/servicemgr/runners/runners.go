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

// Package runners implements the concrete service types a configuration can
// declare. Each runner validates its parameter object and maps the active
// configuration to the OS processes the service needs.
package runners

import (
	"fmt"

	"github.com/factorykit/provision-core/pkg/configstore"
)

// stringParam reads an optional string parameter, returning fallback when
// absent and an error when present with the wrong type.
func stringParam(params configstore.ServiceParams, key, fallback string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return fallback, nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q must be a string", key)
	}
	return value, nil
}

// requireString reads a mandatory non-empty string parameter.
func requireString(params configstore.ServiceParams, key string) (string, error) {
	value, err := stringParam(params, key, "")
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", fmt.Errorf("parameter %q is required", key)
	}
	return value, nil
}

// boolParam reads an optional bool parameter.
func boolParam(params configstore.ServiceParams, key string, fallback bool) (bool, error) {
	raw, ok := params[key]
	if !ok {
		return fallback, nil
	}
	value, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("parameter %q must be a boolean", key)
	}
	return value, nil
}
