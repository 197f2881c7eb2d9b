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

// Package configstore parses, validates and atomically activates the
// versioned configuration documents that describe which auxiliary services
// run on this provisioning server and which resource bundles devices get.
//
// Configurations are immutable and content-addressed: the hash is a
// deterministic function of the canonical serialization, so two semantically
// identical documents collapse to one stored object.
package configstore

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	json "github.com/goccy/go-json"
)

// ServiceParams is the free-form parameter object of one declared service.
type ServiceParams map[string]interface{}

// Bundle is one versioned set of resources referenced by a configuration.
type Bundle struct {
	ID        string   `json:"id"`
	Note      string   `json:"note,omitempty"`
	Resources []string `json:"resources"`
}

// Matcher selects devices by identity. Empty fields match everything; a
// populated field matches when the device attribute is listed. Ranges are
// two-element inclusive start/end pairs where "-" means open end.
type Matcher struct {
	SerialNumbers []string `json:"sn,omitempty"`
	MACs          []string `json:"mac,omitempty"`
	Stages        []string `json:"stage,omitempty"`
	SerialRange   []string `json:"sn_range,omitempty"`
}

// Ruleset maps a device selector to the bundle those devices receive. Rules
// are evaluated in order; the first active match wins.
type Ruleset struct {
	BundleID string   `json:"bundle_id"`
	Note     string   `json:"note,omitempty"`
	Active   bool     `json:"active"`
	Match    *Matcher `json:"match,omitempty"`
}

// Configuration is an immutable, content-addressed configuration document.
type Configuration struct {
	APIVersion string                   `json:"apiVersion"`
	Services   map[string]ServiceParams `json:"services"`
	Bundles    []Bundle                 `json:"bundles"`
	Rulesets   []Ruleset                `json:"rulesets"`

	hash string
}

// Hash returns the configuration's content hash. Empty until the document
// has been through parseDocument.
func (c *Configuration) Hash() string { return c.hash }

// Bundle returns the bundle with the given ID, nil when absent.
func (c *Configuration) Bundle(id string) *Bundle {
	for i := range c.Bundles {
		if c.Bundles[i].ID == id {
			return &c.Bundles[i]
		}
	}
	return nil
}

// DefaultBundle returns the bundle of the first active ruleset, nil when no
// ruleset is active.
func (c *Configuration) DefaultBundle() *Bundle {
	for _, rule := range c.Rulesets {
		if rule.Active {
			return c.Bundle(rule.BundleID)
		}
	}
	return nil
}

// ActiveBundles returns the bundles referenced by active rulesets, in rule
// order and without duplicates.
func (c *Configuration) ActiveBundles() []*Bundle {
	seen := make(map[string]bool)

	var bundles []*Bundle
	for _, rule := range c.Rulesets {
		if !rule.Active || seen[rule.BundleID] {
			continue
		}
		if bundle := c.Bundle(rule.BundleID); bundle != nil {
			seen[rule.BundleID] = true
			bundles = append(bundles, bundle)
		}
	}

	return bundles
}

// StringParam reads a string-typed service parameter, returning fallback when
// the service or key is absent or of the wrong type.
func (c *Configuration) StringParam(service, key, fallback string) string {
	params, ok := c.Services[service]
	if !ok {
		return fallback
	}
	value, ok := params[key].(string)
	if !ok || value == "" {
		return fallback
	}
	return value
}

// CanonicalBytes returns the canonical serialization the content hash is
// computed over. Struct fields marshal in declaration order and map keys are
// sorted, so insignificant whitespace and key ordering in the incoming
// document never change the hash.
func (c *Configuration) CanonicalBytes() ([]byte, error) {
	canonical, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize configuration: %w", err)
	}
	return canonical, nil
}

// computeHash derives the content hash from the canonical serialization.
func computeHash(canonical []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(canonical))
}
