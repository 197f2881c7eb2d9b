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

package configstore_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/factorykit/provision-core/pkg/configstore"
	"github.com/factorykit/provision-core/pkg/envstore"
	"github.com/factorykit/provision-core/pkg/service/filesystem"
)

var _ = Describe("BundleForDevice", func() {
	var config *configstore.Configuration

	// parse builds a Configuration through the store so the document runs the
	// same path production documents do.
	parse := func(doc string) *configstore.Configuration {
		ctx := context.Background()
		env := envstore.NewStore("/env", filesystem.NewMockFileSystem())
		Expect(env.Init(ctx)).To(Succeed())
		for _, name := range []string{"a.bin", "b.bin", "c.bin"} {
			Expect(env.AddResource(ctx, name, []byte(name))).To(Succeed())
		}

		store := configstore.NewStore(env, map[string]configstore.ServiceValidator{})
		parsed, err := store.Validate(ctx, []byte(doc))
		Expect(err).NotTo(HaveOccurred())
		return parsed
	}

	BeforeEach(func() {
		config = parse(`{
			"apiVersion": "1.0.0",
			"services": {},
			"bundles": [
				{"id": "smt", "resources": ["a.bin"]},
				{"id": "fatp", "resources": ["b.bin"]},
				{"id": "default", "resources": ["c.bin"]}
			],
			"rulesets": [
				{"bundle_id": "smt", "active": true, "match": {"stage": ["SMT"]}},
				{"bundle_id": "fatp", "active": true, "match": {"sn_range": ["SN1000", "SN1999"]}},
				{"bundle_id": "default", "active": true}
			]
		}`)
	})

	It("assigns the first active matching ruleset's bundle", func() {
		bundle := config.BundleForDevice(configstore.DeviceSelector{Stage: "SMT"})
		Expect(bundle).NotTo(BeNil())
		Expect(bundle.ID).To(Equal("smt"))
	})

	It("matches inclusive serial ranges", func() {
		bundle := config.BundleForDevice(configstore.DeviceSelector{SerialNumber: "SN1500"})
		Expect(bundle.ID).To(Equal("fatp"))

		bundle = config.BundleForDevice(configstore.DeviceSelector{SerialNumber: "SN1000"})
		Expect(bundle.ID).To(Equal("fatp"))

		bundle = config.BundleForDevice(configstore.DeviceSelector{SerialNumber: "SN2500"})
		Expect(bundle.ID).To(Equal("default"))
	})

	It("routes unmatched devices to the catch-all ruleset", func() {
		bundle := config.BundleForDevice(configstore.DeviceSelector{Stage: "RMA"})
		Expect(bundle).NotTo(BeNil())
		Expect(bundle.ID).To(Equal("default"))
	})

	It("falls back to the first active ruleset's bundle when no rule matches", func() {
		strict := parse(`{
			"apiVersion": "1.0.0",
			"services": {},
			"bundles": [
				{"id": "smt", "resources": ["a.bin"]},
				{"id": "fatp", "resources": ["b.bin"]}
			],
			"rulesets": [
				{"bundle_id": "smt", "active": true, "match": {"stage": ["SMT"]}},
				{"bundle_id": "fatp", "active": true, "match": {"stage": ["FATP"]}}
			]
		}`)

		bundle := strict.BundleForDevice(configstore.DeviceSelector{Stage: "RMA"})
		Expect(bundle).NotTo(BeNil())
		Expect(bundle.ID).To(Equal("smt"))
	})

	It("skips inactive rulesets", func() {
		inactive := parse(`{
			"apiVersion": "1.0.0",
			"services": {},
			"bundles": [
				{"id": "smt", "resources": ["a.bin"]},
				{"id": "default", "resources": ["c.bin"]}
			],
			"rulesets": [
				{"bundle_id": "smt", "active": false, "match": {"stage": ["SMT"]}},
				{"bundle_id": "default", "active": true}
			]
		}`)

		bundle := inactive.BundleForDevice(configstore.DeviceSelector{Stage: "SMT"})
		Expect(bundle.ID).To(Equal("default"))
	})

	It("returns nil when no ruleset is active at all", func() {
		none := parse(`{
			"apiVersion": "1.0.0",
			"services": {},
			"bundles": [{"id": "smt", "resources": ["a.bin"]}],
			"rulesets": [{"bundle_id": "smt", "active": false}]
		}`)

		Expect(none.BundleForDevice(configstore.DeviceSelector{})).To(BeNil())
	})
})
