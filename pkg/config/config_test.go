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

package config_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/factorykit/provision-core/pkg/config"
	"github.com/factorykit/provision-core/pkg/constants"
	"github.com/factorykit/provision-core/pkg/service/filesystem"
)

var _ = Describe("Load", func() {
	var (
		ctx  context.Context
		mock *filesystem.MockFileSystem
	)

	const path = "/etc/provision/config.yaml"

	BeforeEach(func() {
		ctx = context.Background()
		mock = filesystem.NewMockFileSystem()

		for _, key := range []string{"PROVISION_ENV_ROOT", "PROVISION_LISTEN_ADDR", "PROVISION_METRICS_ADDR", "PROVISION_BACKEND_URL"} {
			Expect(os.Unsetenv(key)).To(Succeed())
		}
	})

	It("returns defaults when the file is absent", func() {
		cfg, err := config.Load(ctx, mock, path)
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.EnvironmentRoot).To(Equal(constants.DefaultEnvironmentRoot))
		Expect(cfg.ListenAddr).To(Equal(":8080"))
		Expect(cfg.BackendURL).To(Equal(constants.DefaultShopFloorBackendURL))
	})

	It("reads values from the file", func() {
		Expect(mock.WriteFile(ctx, path, []byte(`
environmentRoot: /srv/factory
listenAddr: ":9999"
backendURL: "http://shopfloor.internal"
`), constants.EnvFilePerm)).To(Succeed())

		cfg, err := config.Load(ctx, mock, path)
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.EnvironmentRoot).To(Equal("/srv/factory"))
		Expect(cfg.ListenAddr).To(Equal(":9999"))
		Expect(cfg.BackendURL).To(Equal("http://shopfloor.internal"))
		// Values absent from the file keep their defaults.
		Expect(cfg.MetricsAddr).To(Equal(":9090"))
	})

	It("lets environment variables override the file", func() {
		Expect(mock.WriteFile(ctx, path, []byte("environmentRoot: /srv/factory\n"), constants.EnvFilePerm)).To(Succeed())
		Expect(os.Setenv("PROVISION_ENV_ROOT", "/srv/override")).To(Succeed())
		defer func() { _ = os.Unsetenv("PROVISION_ENV_ROOT") }()

		cfg, err := config.Load(ctx, mock, path)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.EnvironmentRoot).To(Equal("/srv/override"))
	})

	It("fails on a malformed file instead of silently using defaults", func() {
		Expect(mock.WriteFile(ctx, path, []byte(":: not yaml ::"), constants.EnvFilePerm)).To(Succeed())

		_, err := config.Load(ctx, mock, path)
		Expect(err).To(HaveOccurred())
	})

	It("fails when the effective environment root is empty", func() {
		Expect(mock.WriteFile(ctx, path, []byte(`environmentRoot: ""`), constants.EnvFilePerm)).To(Succeed())

		_, err := config.Load(ctx, mock, path)
		Expect(err).To(HaveOccurred())
	})
})
