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

// DeviceSelector is the identity a device presents when asking which bundle
// it should run.
type DeviceSelector struct {
	SerialNumber string
	MAC          string
	Stage        string
}

// BundleForDevice returns the bundle the first active matching ruleset
// assigns to the device, falling back to the default bundle when no rule
// matches. Returns nil when the configuration has no active ruleset at all.
func (c *Configuration) BundleForDevice(selector DeviceSelector) *Bundle {
	for _, rule := range c.Rulesets {
		if !rule.Active {
			continue
		}
		if rule.Match == nil || rule.Match.accepts(selector) {
			if bundle := c.Bundle(rule.BundleID); bundle != nil {
				return bundle
			}
		}
	}

	return c.DefaultBundle()
}

func (m *Matcher) accepts(selector DeviceSelector) bool {
	if len(m.SerialNumbers) > 0 && !contains(m.SerialNumbers, selector.SerialNumber) {
		return false
	}
	if len(m.MACs) > 0 && !contains(m.MACs, selector.MAC) {
		return false
	}
	if len(m.Stages) > 0 && !contains(m.Stages, selector.Stage) {
		return false
	}
	if len(m.SerialRange) == 2 && !inRange(m.SerialRange[0], m.SerialRange[1], selector.SerialNumber) {
		return false
	}

	return true
}

func contains(list []string, value string) bool {
	for _, entry := range list {
		if entry == value {
			return true
		}
	}
	return false
}

// inRange checks an inclusive lexicographic serial range where "-" means
// open end.
func inRange(start, end, value string) bool {
	if value == "" {
		return false
	}
	if start != "-" && value < start {
		return false
	}
	if end != "-" && value > end {
		return false
	}
	return true
}
