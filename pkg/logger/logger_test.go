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

package logger_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zapcore"

	"github.com/factorykit/provision-core/pkg/logger"
)

var _ = Describe("Reconfigure", func() {
	AfterEach(func() {
		logger.Reconfigure(string(logger.ProductionLevel))
	})

	It("applies the requested level to the global logger", func() {
		logger.Reconfigure("DEBUG")
		Expect(logger.GetLogger().Core().Enabled(zapcore.DebugLevel)).To(BeTrue())

		logger.Reconfigure("ERROR")
		Expect(logger.GetLogger().Core().Enabled(zapcore.InfoLevel)).To(BeFalse())
		Expect(logger.GetLogger().Core().Enabled(zapcore.ErrorLevel)).To(BeTrue())
	})

	It("falls back to info for an unknown level", func() {
		logger.Reconfigure("banana")
		Expect(logger.GetLogger().Core().Enabled(zapcore.InfoLevel)).To(BeTrue())
		Expect(logger.GetLogger().Core().Enabled(zapcore.DebugLevel)).To(BeFalse())
	})
})
