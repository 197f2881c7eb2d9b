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

package configstore

import (
	"bytes"
	"fmt"

	"github.com/Masterminds/semver/v3"
	json "github.com/goccy/go-json"

	"github.com/factorykit/provision-core/pkg/constants"
)

// ServiceValidator checks the parameter object of one service type. The
// service registry supplies one validator per known type at startup.
type ServiceValidator func(params ServiceParams) error

// deprecatedTopLevelKeys were once valid and are now rejected explicitly so
// operators get a precise message instead of a silently ignored field.
// ip/port were per-server endpoint overrides conflicting with the server's
// own listener; board moved into bundle metadata; shop_floor handler
// settings moved into the shop_floor service params.
var deprecatedTopLevelKeys = []string{"ip", "port", "board", "shop_floor"}

// parseDocument decodes raw JSON into a Configuration and computes its
// content hash. It rejects deprecated and unknown top-level fields but does
// not run semantic validation.
func parseDocument(raw []byte) (*Configuration, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, &ValidationError{Issues: []string{fmt.Sprintf("document is not a JSON object: %v", err)}}
	}

	var issues []string
	for _, key := range deprecatedTopLevelKeys {
		if _, found := probe[key]; found {
			issues = append(issues, fmt.Sprintf("top-level key %q is deprecated and must be removed", key))
		}
	}
	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}

	var config Configuration
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&config); err != nil {
		return nil, &ValidationError{Issues: []string{fmt.Sprintf("document does not match the configuration schema: %v", err)}}
	}

	canonical, err := config.CanonicalBytes()
	if err != nil {
		return nil, err
	}
	config.hash = computeHash(canonical)

	return &config, nil
}

// validateSchema runs the pure semantic checks: apiVersion range, known
// service types with valid parameters, bundle uniqueness, ruleset and
// matcher consistency. It has no side effects.
func validateSchema(config *Configuration, validators map[string]ServiceValidator) error {
	var issues []string

	if config.APIVersion == "" {
		issues = append(issues, "apiVersion is required")
	} else if version, err := semver.NewVersion(config.APIVersion); err != nil {
		issues = append(issues, fmt.Sprintf("apiVersion %q is not a semantic version", config.APIVersion))
	} else {
		supported, err := semver.NewConstraint(constants.SupportedConfigAPIRange)
		if err == nil && !supported.Check(version) {
			issues = append(issues, fmt.Sprintf("apiVersion %s is outside the supported range %s",
				config.APIVersion, constants.SupportedConfigAPIRange))
		}
	}

	for name, params := range config.Services {
		validator, known := validators[name]
		if !known {
			issues = append(issues, fmt.Sprintf("unknown service type %q", name))
			continue
		}
		if err := validator(params); err != nil {
			issues = append(issues, fmt.Sprintf("service %q: %v", name, err))
		}
	}

	bundleIDs := make(map[string]bool, len(config.Bundles))
	for _, bundle := range config.Bundles {
		if bundle.ID == "" {
			issues = append(issues, "bundle with empty id")
			continue
		}
		if bundleIDs[bundle.ID] {
			issues = append(issues, fmt.Sprintf("duplicate bundle id %q", bundle.ID))
		}
		bundleIDs[bundle.ID] = true
	}

	for i, rule := range config.Rulesets {
		if !bundleIDs[rule.BundleID] {
			issues = append(issues, fmt.Sprintf("ruleset %d references unknown bundle %q", i, rule.BundleID))
		}
		if rule.Match != nil && len(rule.Match.SerialRange) != 0 && len(rule.Match.SerialRange) != 2 {
			issues = append(issues, fmt.Sprintf("ruleset %d: sn_range must be a start/end pair", i))
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}

	return nil
}
