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

package migration_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/factorykit/provision-core/pkg/envstore"
	"github.com/factorykit/provision-core/pkg/migration"
	"github.com/factorykit/provision-core/pkg/service/filesystem"
)

var _ = Describe("Runner", func() {
	var (
		ctx     context.Context
		env     *envstore.Store
		applied []int
	)

	step := func(seq int, fail error) migration.Step {
		return migration.Step{
			Seq:  seq,
			Name: "test-step",
			Apply: func(ctx context.Context, env *envstore.Store) error {
				if fail != nil {
					return fail
				}
				applied = append(applied, seq)
				return nil
			},
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		env = envstore.NewStore("/env", filesystem.NewMockFileSystem())
		Expect(env.Init(ctx)).To(Succeed())
		applied = nil
	})

	Describe("NewRunner", func() {
		It("rejects duplicate sequence numbers", func() {
			_, err := migration.NewRunner(env, []migration.Step{step(1, nil), step(1, nil)})
			Expect(err).To(HaveOccurred())
		})

		It("rejects non-positive sequence numbers", func() {
			_, err := migration.NewRunner(env, []migration.Step{step(0, nil)})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Run", func() {
		It("applies all steps to a fresh environment and records the version", func() {
			runner, err := migration.NewRunner(env, []migration.Step{step(1, nil), step(2, nil), step(3, nil)})
			Expect(err).NotTo(HaveOccurred())

			Expect(runner.Run(ctx)).To(Succeed())
			Expect(applied).To(Equal([]int{1, 2, 3}))

			version, err := env.ReadVersion(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(version).To(Equal(3))
		})

		It("applies steps in ascending order regardless of registration order", func() {
			runner, err := migration.NewRunner(env, []migration.Step{step(3, nil), step(1, nil), step(2, nil)})
			Expect(err).NotTo(HaveOccurred())

			Expect(runner.Run(ctx)).To(Succeed())
			Expect(applied).To(Equal([]int{1, 2, 3}))
		})

		It("is a no-op when re-run on an up-to-date environment", func() {
			runner, err := migration.NewRunner(env, []migration.Step{step(1, nil), step(2, nil)})
			Expect(err).NotTo(HaveOccurred())

			Expect(runner.Run(ctx)).To(Succeed())
			applied = nil

			Expect(runner.Run(ctx)).To(Succeed())
			Expect(applied).To(BeEmpty())
		})

		It("stops at the first failure and keeps the version at the last good step", func() {
			boom := errors.New("precondition violated")
			runner, err := migration.NewRunner(env, []migration.Step{step(1, nil), step(2, boom), step(3, nil)})
			Expect(err).NotTo(HaveOccurred())

			err = runner.Run(ctx)
			Expect(err).To(HaveOccurred())

			var failed *migration.FailedError
			Expect(errors.As(err, &failed)).To(BeTrue())
			Expect(failed.Seq).To(Equal(2))
			Expect(errors.Is(err, boom)).To(BeTrue())

			// Step 3 never ran.
			Expect(applied).To(Equal([]int{1}))

			version, verr := env.ReadVersion(ctx)
			Expect(verr).NotTo(HaveOccurred())
			Expect(version).To(Equal(1))
		})

		It("resumes after the failing step is fixed", func() {
			boom := errors.New("precondition violated")
			runner, err := migration.NewRunner(env, []migration.Step{step(1, nil), step(2, boom), step(3, nil)})
			Expect(err).NotTo(HaveOccurred())
			Expect(runner.Run(ctx)).NotTo(Succeed())

			applied = nil
			fixed, err := migration.NewRunner(env, []migration.Step{step(1, nil), step(2, nil), step(3, nil)})
			Expect(err).NotTo(HaveOccurred())

			Expect(fixed.Run(ctx)).To(Succeed())
			// Step 1 is not re-executed.
			Expect(applied).To(Equal([]int{2, 3}))

			version, verr := env.ReadVersion(ctx)
			Expect(verr).NotTo(HaveOccurred())
			Expect(version).To(Equal(3))
		})
	})

	Describe("BuiltinSteps", func() {
		It("registers strictly increasing sequence numbers", func() {
			steps := migration.BuiltinSteps()
			Expect(steps).NotTo(BeEmpty())
			for i := 1; i < len(steps); i++ {
				Expect(steps[i].Seq).To(BeNumerically(">", steps[i-1].Seq))
			}
		})

		It("fails when the active configuration still carries legacy endpoint keys", func() {
			legacy := []byte(`{"ip": "10.0.0.1", "port": 8080, "services": {}}`)
			Expect(env.WriteConfigDocument(ctx, "feedfeedfeedfeed", legacy)).To(Succeed())
			Expect(env.SwapActiveConfig(ctx, "feedfeedfeedfeed")).To(Succeed())

			runner, err := migration.NewRunner(env, migration.BuiltinSteps())
			Expect(err).NotTo(HaveOccurred())

			err = runner.Run(ctx)
			Expect(err).To(HaveOccurred())

			var failed *migration.FailedError
			Expect(errors.As(err, &failed)).To(BeTrue())
			Expect(failed.Seq).To(Equal(3))

			// The version stays at the last good step.
			version, verr := env.ReadVersion(ctx)
			Expect(verr).NotTo(HaveOccurred())
			Expect(version).To(Equal(2))
		})

		It("brings a fresh environment to the latest version", func() {
			runner, err := migration.NewRunner(env, migration.BuiltinSteps())
			Expect(err).NotTo(HaveOccurred())

			Expect(runner.Run(ctx)).To(Succeed())

			version, verr := env.ReadVersion(ctx)
			Expect(verr).NotTo(HaveOccurred())
			Expect(version).To(Equal(runner.LatestVersion()))
		})
	})
})
