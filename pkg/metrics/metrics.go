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

package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/factorykit/provision-core/pkg/logger"
	"github.com/factorykit/provision-core/pkg/sentry"
)

const (
	// Component labels.
	ComponentCore            = "core"
	ComponentEnvStore        = "env_store"
	ComponentMigrationRunner = "migration_runner"
	ComponentConfigStore     = "config_store"
	ComponentServiceManager  = "service_manager"
	ComponentShopFloorBridge = "shopfloor_bridge"
	ComponentFilesystem      = "filesystem"
)

var (
	// Namespace and subsystem for all metrics.
	namespace = "factory"
	subsystem = "provision"

	// Error counters.
	errorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors encountered by component",
		},
		[]string{"component", "instance"},
	)

	// Reconcile timing.
	reconcileTime = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reconcile_duration_milliseconds",
			Help:      "Time taken to reconcile the declared service set (in milliseconds)",
			Objectives: map[float64]float64{
				0.5:  0.01,
				0.9:  0.01,
				0.95: 0.01,
				0.99: 0.01,
			},
		},
		[]string{"component", "instance"},
	)

	// Service state metrics.
	serviceCurrentState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "service_current_state",
			Help:      "Current state of a managed service (0=Stopped, 1=Starting, 2=Running, 3=Degraded, -1=Unknown)",
		},
		[]string{"component", "instance"},
	)

	// Device-facing RPC metrics.
	rpcCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "shopfloor_rpc_total",
			Help:      "Total device-facing RPC calls by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	rpcDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "shopfloor_rpc_duration_seconds",
			Help:      "Duration of device-facing RPC calls in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"method"},
	)

	// Configuration lifecycle metrics.
	configActivationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "config_activations_total",
			Help:      "Total number of configuration activations (including rollbacks)",
		},
	)

	migrationVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "migration_version",
			Help:      "Currently committed environment migration version",
		},
	)

	// Filesystem operation metrics.
	filesystemOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "filesystem_ops_total",
			Help:      "Total number of filesystem operations by type",
		},
		[]string{"operation", "status"},
	)

	filesystemOpsDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "filesystem_ops_duration_seconds",
			Help:      "Duration of filesystem operations in seconds",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)
)

// IncErrorCount increments the error counter for a component.
func IncErrorCount(component, instance string) {
	errorCounter.WithLabelValues(component, instance).Inc()
}

// InitErrorCounter initializes the error counter for a component.
func InitErrorCounter(component, instance string) {
	errorCounter.WithLabelValues(component, instance).Add(0)
}

// ObserveReconcileTime records the time taken for a reconciliation.
func ObserveReconcileTime(component, instance string, duration time.Duration) {
	reconcileTime.WithLabelValues(component, instance).Observe(float64(duration.Milliseconds()))
}

// SetServiceState records the numeric state of a managed service.
func SetServiceState(component, instance string, state float64) {
	serviceCurrentState.WithLabelValues(component, instance).Set(state)
}

// RecordRPCCall records one device-facing RPC call.
func RecordRPCCall(method, outcome string, duration time.Duration) {
	rpcCallsTotal.WithLabelValues(method, outcome).Inc()
	rpcDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// IncConfigActivations counts a successful configuration activation.
func IncConfigActivations() {
	configActivationsTotal.Inc()
}

// SetMigrationVersion records the committed migration version.
func SetMigrationVersion(version int) {
	migrationVersion.Set(float64(version))
}

// RecordFilesystemOp records one filesystem operation.
func RecordFilesystemOp(op string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	filesystemOpsTotal.WithLabelValues(op, status).Inc()
	filesystemOpsDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// SetupMetricsEndpoint starts an HTTP server to expose metrics
// This should be called once at application startup.
func SetupMetricsEndpoint(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sentry.ReportIssue(err, sentry.IssueTypeFatal, logger.For("metrics"))
		}
	}()

	return server
}
