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

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/factorykit/provision-core/pkg/config"
	"github.com/factorykit/provision-core/pkg/configstore"
	"github.com/factorykit/provision-core/pkg/envstore"
	"github.com/factorykit/provision-core/pkg/logger"
	"github.com/factorykit/provision-core/pkg/metrics"
	"github.com/factorykit/provision-core/pkg/migration"
	"github.com/factorykit/provision-core/pkg/sentry"
	"github.com/factorykit/provision-core/pkg/service/filesystem"
	"github.com/factorykit/provision-core/pkg/service/httpclient"
	"github.com/factorykit/provision-core/pkg/servicemgr"
	"github.com/factorykit/provision-core/pkg/servicemgr/runners"
	"github.com/factorykit/provision-core/pkg/shopfloor"
	"github.com/factorykit/provision-core/pkg/version"
)

const bootstrapConfigPath = "/etc/provision/config.yaml"

func main() {
	// Initialize the global logger first thing
	logger.Initialize()

	log := logger.For(logger.ComponentCore)
	log.Infof("Starting provision-core %s...", version.GetAppVersion())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fs := filesystem.NewDefaultService()

	bootstrap, err := config.LoadWithRetry(ctx, fs, bootstrapConfigPath)
	if err != nil {
		log.Fatalf("Failed to load bootstrap config: %v", err)
	}

	if bootstrap.LogLevel != "" {
		logger.Reconfigure(bootstrap.LogLevel)
		log = logger.For(logger.ComponentCore)
	}

	sentry.InitSentry(version.GetAppVersion(), bootstrap.AllowErrorReporting)
	defer sentry.Flush(2 * time.Second)

	// Environment first: nothing else may touch the state directory before
	// the corruption checks and migrations have run.
	env := envstore.NewStore(bootstrap.EnvironmentRoot, fs)
	if err := env.Init(ctx); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Environment unusable: %v", err)
	}

	runner, err := migration.NewRunner(env, migration.BuiltinSteps())
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Invalid migration set: %v", err)
	}
	if err := runner.Run(ctx); err != nil {
		// A failed migration leaves the environment at the last good
		// version; the server must not enter service mode on top of it.
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Migration failed: %v", err)
	}

	registry, err := servicemgr.NewRegistry(
		runners.NewShopFloorProxy(),
		runners.NewDHCP(),
		runners.NewRsyncd(),
		runners.NewMulticast(),
		runners.NewDummy(),
	)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to build service registry: %v", err)
	}

	configs := configstore.NewStore(env, registry.Validators())
	manager := servicemgr.NewManager(registry, env)

	// Bring the service set up for the configuration that survived the
	// restart, if there is one.
	if active, err := configs.GetActive(ctx); err == nil {
		report, err := manager.Reconcile(ctx, active)
		if err != nil {
			sentry.ReportIssuef(sentry.IssueTypeError, log, "Initial reconcile failed: %v", err)
		} else {
			for _, failure := range report.Failed {
				log.Errorf("Service %s failed to start: %v", failure.Service, failure.Err)
			}
		}
	} else if !errors.Is(err, configstore.ErrNoActiveConfig) {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to load active configuration: %v", err)
	}

	go manager.RunLivenessLoop(ctx)

	var metricsServer *http.Server
	if bootstrap.MetricsAddr != "" {
		metricsServer = metrics.SetupMetricsEndpoint(bootstrap.MetricsAddr)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer shutdownCancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to shutdown metrics server: %v", err)
			}
		}()
	}

	bridge := shopfloor.NewBridge(configs, manager, env,
		shopfloor.NewBackendClient(httpclient.NewDefaultHTTPClient()), bootstrap.BackendURL)
	server := &http.Server{
		Addr:    bootstrap.ListenAddr,
		Handler: bridge.Router(),
	}

	go func() {
		log.Infof("Device RPC and admin server listening on %s", bootstrap.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sentry.ReportIssuef(sentry.IssueTypeFatal, log, "HTTP server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Failed to shutdown HTTP server: %v", err)
	}

	for _, failure := range manager.StopAll(shutdownCtx) {
		log.Errorf("Service %s failed to stop: %v", failure.Service, failure.Err)
	}

	if err := logger.Sync(); err != nil {
		// Stdout sync errors on Linux are expected, nothing to do.
		_ = err
	}
}
