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

package servicemgr_test

import (
	"context"
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/factorykit/provision-core/pkg/configstore"
	"github.com/factorykit/provision-core/pkg/envstore"
	"github.com/factorykit/provision-core/pkg/service/filesystem"
	"github.com/factorykit/provision-core/pkg/servicemgr"
)

// fakeRunner counts CreateProcesses calls so tests can observe which
// services a reconcile actually touched. The counter is mutex guarded
// because restarts invoke CreateProcesses from watcher goroutines.
type fakeRunner struct {
	name      string
	specs     []servicemgr.ProcessSpec
	createErr error

	mu          sync.Mutex
	createCalls int
}

func (f *fakeRunner) Name() string { return f.name }

func (f *fakeRunner) Validate(params configstore.ServiceParams) error { return nil }

func (f *fakeRunner) CreateProcesses(ctx context.Context, cfg *configstore.Configuration, env *envstore.Store) ([]servicemgr.ProcessSpec, error) {
	f.mu.Lock()
	f.createCalls++
	f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.specs, nil
}

func (f *fakeRunner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}

func configWith(services map[string]configstore.ServiceParams) *configstore.Configuration {
	return &configstore.Configuration{
		APIVersion: "1.0.0",
		Services:   services,
	}
}

var _ = Describe("Manager", func() {
	var (
		ctx     context.Context
		env     *envstore.Store
		alpha   *fakeRunner
		beta    *fakeRunner
		gamma   *fakeRunner
		manager *servicemgr.Manager
	)

	BeforeEach(func() {
		ctx = context.Background()
		env = envstore.NewStore("/env", filesystem.NewMockFileSystem())
		Expect(env.Init(ctx)).To(Succeed())

		alpha = &fakeRunner{name: "alpha"}
		beta = &fakeRunner{name: "beta"}
		gamma = &fakeRunner{name: "gamma"}

		registry, err := servicemgr.NewRegistry(alpha, beta, gamma)
		Expect(err).NotTo(HaveOccurred())

		manager = servicemgr.NewManager(registry, env)
	})

	AfterEach(func() {
		manager.StopAll(ctx)
	})

	Describe("Registry", func() {
		It("rejects duplicate runner names", func() {
			_, err := servicemgr.NewRegistry(&fakeRunner{name: "dup"}, &fakeRunner{name: "dup"})
			Expect(err).To(HaveOccurred())
		})

		It("exposes one validator per runner", func() {
			registry, err := servicemgr.NewRegistry(alpha, beta)
			Expect(err).NotTo(HaveOccurred())

			validators := registry.Validators()
			Expect(validators).To(HaveKey("alpha"))
			Expect(validators).To(HaveKey("beta"))
			Expect(validators).To(HaveLen(2))
		})
	})

	Describe("Reconcile", func() {
		It("starts every declared service", func() {
			report, err := manager.Reconcile(ctx, configWith(map[string]configstore.ServiceParams{
				"alpha": {},
				"beta":  {},
			}))
			Expect(err).NotTo(HaveOccurred())

			Expect(report.Started).To(ConsistOf("alpha", "beta"))
			Expect(report.Failed).To(BeEmpty())

			states := manager.States()
			Expect(states["alpha"]).To(Equal(servicemgr.StateRunning))
			Expect(states["beta"]).To(Equal(servicemgr.StateRunning))
		})

		It("keeps unchanged services running untouched", func() {
			cfg := configWith(map[string]configstore.ServiceParams{
				"alpha": {"key": "value"},
			})
			_, err := manager.Reconcile(ctx, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(alpha.calls()).To(Equal(1))

			report, err := manager.Reconcile(ctx, configWith(map[string]configstore.ServiceParams{
				"alpha": {"key": "value"},
			}))
			Expect(err).NotTo(HaveOccurred())

			Expect(report.Kept).To(ConsistOf("alpha"))
			Expect(report.Started).To(BeEmpty())
			Expect(alpha.calls()).To(Equal(1))
		})

		It("restarts services whose parameters changed", func() {
			_, err := manager.Reconcile(ctx, configWith(map[string]configstore.ServiceParams{
				"alpha": {"key": "old"},
			}))
			Expect(err).NotTo(HaveOccurred())

			report, err := manager.Reconcile(ctx, configWith(map[string]configstore.ServiceParams{
				"alpha": {"key": "new"},
			}))
			Expect(err).NotTo(HaveOccurred())

			Expect(report.Started).To(ConsistOf("alpha"))
			Expect(alpha.calls()).To(Equal(2))
		})

		It("stops services removed from the configuration", func() {
			_, err := manager.Reconcile(ctx, configWith(map[string]configstore.ServiceParams{
				"alpha": {},
				"beta":  {},
			}))
			Expect(err).NotTo(HaveOccurred())

			report, err := manager.Reconcile(ctx, configWith(map[string]configstore.ServiceParams{
				"alpha": {},
			}))
			Expect(err).NotTo(HaveOccurred())

			Expect(report.Stopped).To(ConsistOf("beta"))
			Expect(report.Kept).To(ConsistOf("alpha"))
			Expect(manager.States()).NotTo(HaveKey("beta"))
		})

		It("swaps one service for another while leaving a third untouched", func() {
			_, err := manager.Reconcile(ctx, configWith(map[string]configstore.ServiceParams{
				"alpha": {},
				"gamma": {},
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(gamma.calls()).To(Equal(1))

			report, err := manager.Reconcile(ctx, configWith(map[string]configstore.ServiceParams{
				"beta":  {},
				"gamma": {},
			}))
			Expect(err).NotTo(HaveOccurred())

			Expect(report.Stopped).To(ConsistOf("alpha"))
			Expect(report.Started).To(ConsistOf("beta"))
			Expect(report.Kept).To(ConsistOf("gamma"))
			Expect(gamma.calls()).To(Equal(1))
		})

		It("collects per-service failures without aborting the batch", func() {
			beta.createErr = fmt.Errorf("broken parameters")

			report, err := manager.Reconcile(ctx, configWith(map[string]configstore.ServiceParams{
				"alpha": {},
				"beta":  {},
			}))
			Expect(err).NotTo(HaveOccurred())

			Expect(report.Started).To(ConsistOf("alpha"))
			Expect(report.Failed).To(HaveLen(1))
			Expect(report.Failed[0].Service).To(Equal("beta"))
			Expect(report.Failed[0].Err).To(MatchError(ContainSubstring("broken parameters")))

			// The failed service retries on the next reconcile.
			beta.createErr = nil
			retry, err := manager.Reconcile(ctx, configWith(map[string]configstore.ServiceParams{
				"alpha": {},
				"beta":  {},
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(retry.Started).To(ConsistOf("beta"))
			Expect(retry.Kept).To(ConsistOf("alpha"))
		})

		It("reports services with no registered runner as failed", func() {
			report, err := manager.Reconcile(ctx, configWith(map[string]configstore.ServiceParams{
				"alpha":   {},
				"unknown": {},
			}))
			Expect(err).NotTo(HaveOccurred())

			Expect(report.Started).To(ConsistOf("alpha"))
			Expect(report.Failed).To(HaveLen(1))
			Expect(report.Failed[0].Service).To(Equal("unknown"))
		})
	})

	Describe("process supervision", func() {
		It("starts and stops a real process", func() {
			alpha.specs = []servicemgr.ProcessSpec{{
				Name:    "sleeper",
				Command: []string{"sleep", "60"},
			}}

			report, err := manager.Reconcile(ctx, configWith(map[string]configstore.ServiceParams{
				"alpha": {},
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Started).To(ConsistOf("alpha"))
			Expect(manager.States()["alpha"]).To(Equal(servicemgr.StateRunning))

			failures := manager.StopAll(ctx)
			Expect(failures).To(BeEmpty())
			Expect(manager.States()).To(BeEmpty())
		})

		It("restarts a crashing service once, then degrades it until the next reconcile", func() {
			alpha.specs = []servicemgr.ProcessSpec{{
				Name:    "crasher",
				Command: []string{"sh", "-c", "sleep 0.2; exit 1"},
			}}

			report, err := manager.Reconcile(ctx, configWith(map[string]configstore.ServiceParams{
				"alpha": {},
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Started).To(ConsistOf("alpha"))
			Expect(alpha.calls()).To(Equal(1))

			// The first crash earns exactly one automatic restart.
			Eventually(alpha.calls, "10s", "50ms").Should(Equal(2))

			// The second crash falls inside the degraded window.
			Eventually(func() string {
				return manager.States()["alpha"]
			}, "10s", "50ms").Should(Equal(servicemgr.StateDegraded))
			Expect(alpha.calls()).To(Equal(2))

			// Reconcile is how a degraded service comes back.
			report, err = manager.Reconcile(ctx, configWith(map[string]configstore.ServiceParams{
				"alpha": {},
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Started).To(ConsistOf("alpha"))
			Expect(alpha.calls()).To(Equal(3))
		})

		It("rejects a spec with an empty command", func() {
			alpha.specs = []servicemgr.ProcessSpec{{Name: "broken"}}

			report, err := manager.Reconcile(ctx, configWith(map[string]configstore.ServiceParams{
				"alpha": {},
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Failed).To(HaveLen(1))
			Expect(report.Failed[0].Service).To(Equal("alpha"))
		})
	})

	Describe("StopAll", func() {
		It("is safe on an empty manager", func() {
			Expect(manager.StopAll(ctx)).To(BeEmpty())
		})
	})
})
