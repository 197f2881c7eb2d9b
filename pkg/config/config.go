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

// Package config loads the server's own bootstrap configuration: where the
// environment lives, what to listen on, where the shop floor backend sits by
// default. This is deliberately separate from the device-facing
// configuration documents the config store manages; the bootstrap file never
// changes at runtime.
package config

import (
	"context"
	"fmt"
	"os"

	"github.com/cenkalti/backoff"
	"gopkg.in/yaml.v3"

	"github.com/factorykit/provision-core/pkg/constants"
	filesystem "github.com/factorykit/provision-core/pkg/service/filesystem"
)

// BootstrapConfig is the server's startup configuration.
//
// Order of precedence (highest to lowest):
// 1. Environment variables (PROVISION_*)
// 2. Config file values
// 3. Defaults
type BootstrapConfig struct {
	// EnvironmentRoot is the directory holding all persisted server state.
	EnvironmentRoot string `yaml:"environmentRoot"`

	// ListenAddr is the address of the device RPC and admin server.
	ListenAddr string `yaml:"listenAddr"`

	// MetricsAddr is the address of the Prometheus endpoint. Empty disables
	// the endpoint.
	MetricsAddr string `yaml:"metricsAddr"`

	// BackendURL is the shop floor backend fallback, used when the active
	// configuration does not set one.
	BackendURL string `yaml:"backendURL"`

	// LogLevel overrides the logger's default level.
	LogLevel string `yaml:"logLevel"`

	// AllowErrorReporting enables forwarding errors to Sentry when a DSN is
	// configured.
	AllowErrorReporting bool `yaml:"allowErrorReporting"`
}

func defaultConfig() BootstrapConfig {
	return BootstrapConfig{
		EnvironmentRoot: constants.DefaultEnvironmentRoot,
		ListenAddr:      ":8080",
		MetricsAddr:     ":9090",
		BackendURL:      constants.DefaultShopFloorBackendURL,
	}
}

// Load reads the bootstrap file, applies environment overrides and returns
// the effective configuration. A missing file is not an error, the defaults
// apply; an unreadable or malformed file is, silently falling back would
// start the server against the wrong environment root.
func Load(ctx context.Context, fs filesystem.Service, path string) (BootstrapConfig, error) {
	cfg := defaultConfig()

	exists, err := fs.PathExists(ctx, path)
	if err != nil {
		return cfg, fmt.Errorf("failed to probe bootstrap config %s: %w", path, err)
	}

	if exists {
		data, err := fs.ReadFile(ctx, path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read bootstrap config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse bootstrap config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.EnvironmentRoot == "" {
		return cfg, fmt.Errorf("bootstrap config %s: environmentRoot must not be empty", path)
	}

	return cfg, nil
}

// LoadWithRetry wraps Load in a short exponential backoff. Startup often
// races the mount of the state volume; retrying a few hundred milliseconds
// beats crash-looping the whole server.
func LoadWithRetry(ctx context.Context, fs filesystem.Service, path string) (BootstrapConfig, error) {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)

	var cfg BootstrapConfig
	operation := func() error {
		var err error
		cfg, err = Load(ctx, fs, path)
		return err
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *BootstrapConfig) {
	if v := os.Getenv("PROVISION_ENV_ROOT"); v != "" {
		cfg.EnvironmentRoot = v
	}
	if v := os.Getenv("PROVISION_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("PROVISION_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("PROVISION_BACKEND_URL"); v != "" {
		cfg.BackendURL = v
	}
	if v := os.Getenv("LOGGING_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
