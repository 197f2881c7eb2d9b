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

package servicemgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	json "github.com/goccy/go-json"
	"github.com/looplab/fsm"
	"github.com/united-manufacturing-hub/expiremap/v2/pkg/expiremap"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/factorykit/provision-core/pkg/configstore"
	"github.com/factorykit/provision-core/pkg/constants"
	"github.com/factorykit/provision-core/pkg/ctxutil/ctxmutex"
	"github.com/factorykit/provision-core/pkg/envstore"
	"github.com/factorykit/provision-core/pkg/logger"
	"github.com/factorykit/provision-core/pkg/metrics"
	"github.com/factorykit/provision-core/pkg/sentry"
)

// ServiceFailure records one service that could not be started or stopped.
type ServiceFailure struct {
	Service string
	Err     error
}

// ReconcileReport summarizes one reconcile pass. A failed service appears in
// Failed and nowhere else; failures never abort the rest of the batch.
type ReconcileReport struct {
	Started []string
	Stopped []string
	Kept    []string
	Failed  []ServiceFailure
}

// serviceInstance is one supervised service: its processes, lifecycle state
// machine and restart bookkeeping.
type serviceInstance struct {
	name      string
	paramsKey string
	machine   *fsm.FSM
	procs     []*supervisedProcess
	restart   *backoff.ExponentialBackOff
}

// Manager owns the running service set. Reconcile is the only way the set
// changes in response to configuration; the restart path only ever replaces
// processes of services that are already in the set.
type Manager struct {
	registry *Registry
	env      *envstore.Store
	logger   *zap.SugaredLogger

	// mutexReconcile serializes Reconcile and StopAll. Context aware so a
	// shutdown never deadlocks behind a stuck reconcile.
	mutexReconcile *ctxmutex.CtxMutex

	// mu guards services and activeCfg against the watcher callbacks,
	// which run on process-exit goroutines.
	mu        sync.Mutex
	services  map[string]*serviceInstance
	activeCfg *configstore.Configuration

	// recentExits remembers services that already burned their one
	// automatic restart. Entries expire with the degraded window, so a
	// service that crashed once long ago earns its restart back.
	recentExits *expiremap.ExpireMap[string, int]
}

// NewManager creates a Manager over the given registry and environment.
func NewManager(registry *Registry, env *envstore.Store) *Manager {
	return &Manager{
		registry:       registry,
		env:            env,
		logger:         logger.For(logger.ComponentServiceManager),
		mutexReconcile: ctxmutex.NewCtxMutex(),
		services:       make(map[string]*serviceInstance),
		recentExits:    expiremap.NewEx[string, int](time.Second, constants.ServiceDegradedWindow),
	}
}

// Reconcile drives the running set towards what cfg declares. Unchanged
// services keep running untouched; removed ones are stopped; new or changed
// ones are stopped and started fresh. Degraded services are always restarted
// fresh, reconcile is how they recover.
func (m *Manager) Reconcile(ctx context.Context, cfg *configstore.Configuration) (*ReconcileReport, error) {
	if err := m.mutexReconcile.Lock(ctx); err != nil {
		return nil, fmt.Errorf("failed to acquire reconcile lock: %w", err)
	}
	defer m.mutexReconcile.Unlock()

	start := time.Now()
	defer func() {
		metrics.ObserveReconcileTime(metrics.ComponentServiceManager, "reconcile", time.Since(start))
	}()

	report := &ReconcileReport{}

	declared := make(map[string]string, len(cfg.Services))
	for name, params := range cfg.Services {
		if _, known := m.registry.Runner(name); !known {
			// Validation rejects unknown types before activation; reaching
			// this means the registry shrank between releases.
			report.Failed = append(report.Failed, ServiceFailure{
				Service: name,
				Err:     fmt.Errorf("no runner registered for service type %q", name),
			})
			continue
		}

		key, err := paramsKey(params)
		if err != nil {
			report.Failed = append(report.Failed, ServiceFailure{Service: name, Err: err})
			continue
		}
		declared[name] = key
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.activeCfg = cfg

	for name, instance := range m.services {
		_, stillDeclared := declared[name]
		if stillDeclared {
			continue
		}
		if err := m.stopInstanceLocked(ctx, instance); err != nil {
			report.Failed = append(report.Failed, ServiceFailure{Service: name, Err: err})
			continue
		}
		delete(m.services, name)
		report.Stopped = append(report.Stopped, name)
	}

	for name, key := range declared {
		instance, running := m.services[name]

		if running && instance.paramsKey == key && instance.machine.Current() != StateDegraded {
			report.Kept = append(report.Kept, name)
			continue
		}

		if running {
			if err := m.stopInstanceLocked(ctx, instance); err != nil {
				report.Failed = append(report.Failed, ServiceFailure{Service: name, Err: err})
				continue
			}
			delete(m.services, name)
		}

		fresh, err := m.startInstanceLocked(ctx, name, key, cfg)
		if err != nil {
			sentry.ReportServiceError(m.logger, name, "failed to start service: %v", err)
			metrics.IncErrorCount(metrics.ComponentServiceManager, name)
			report.Failed = append(report.Failed, ServiceFailure{Service: name, Err: err})
			continue
		}

		m.services[name] = fresh
		report.Started = append(report.Started, name)
	}

	m.logger.Infof("Reconcile done: started=%d stopped=%d kept=%d failed=%d",
		len(report.Started), len(report.Stopped), len(report.Kept), len(report.Failed))

	return report, nil
}

// StopAll stops every supervised service, best effort. All stops are
// attempted even when some fail; the failures come back aggregated.
func (m *Manager) StopAll(ctx context.Context) []ServiceFailure {
	if err := m.mutexReconcile.Lock(ctx); err != nil {
		return []ServiceFailure{{Service: "*", Err: fmt.Errorf("failed to acquire reconcile lock: %w", err)}}
	}
	defer m.mutexReconcile.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		failMu   sync.Mutex
		failures []ServiceFailure
	)

	group, groupCtx := errgroup.WithContext(ctx)
	for name, instance := range m.services {
		group.Go(func() error {
			if err := m.stopInstanceLocked(groupCtx, instance); err != nil {
				failMu.Lock()
				failures = append(failures, ServiceFailure{Service: name, Err: err})
				failMu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()

	m.services = make(map[string]*serviceInstance)

	return failures
}

// States returns the current lifecycle state per supervised service.
func (m *Manager) States() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := make(map[string]string, len(m.services))
	for name, instance := range m.services {
		states[name] = instance.machine.Current()
	}
	return states
}

// RunLivenessLoop periodically verifies the supervised pids still exist and
// degrades services whose processes vanished without the watcher noticing.
// Blocks until ctx is cancelled.
func (m *Manager) RunLivenessLoop(ctx context.Context) {
	ticker := time.NewTicker(constants.ServiceLivenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepLiveness(ctx)
		}
	}
}

func (m *Manager) sweepLiveness(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, instance := range m.services {
		if instance.machine.Current() != StateRunning {
			continue
		}

		for _, proc := range instance.procs {
			if proc.alive(ctx) {
				continue
			}

			select {
			case <-proc.done:
				// Watcher already owns this exit.
			default:
				m.logger.Errorf("Process %s/%s vanished without an observable exit, degrading service",
					name, proc.spec.Name)
				if err := instance.machine.Event(ctx, EventDegrade); err != nil {
					m.logger.Debugf("Service %s: %v", name, err)
				}
			}
			break
		}
	}
}

// startInstanceLocked builds and launches a fresh instance. Caller holds m.mu.
func (m *Manager) startInstanceLocked(ctx context.Context, name, key string, cfg *configstore.Configuration) (*serviceInstance, error) {
	runner, _ := m.registry.Runner(name)

	instance := &serviceInstance{
		name:      name,
		paramsKey: key,
		machine:   newServiceMachine(name),
		restart:   newRestartBackoff(),
	}

	if err := instance.machine.Event(ctx, EventStart); err != nil {
		return nil, err
	}

	specs, err := runner.CreateProcesses(ctx, cfg, m.env)
	if err != nil {
		_ = instance.machine.Event(ctx, EventStop)
		return nil, fmt.Errorf("failed to build processes for %s: %w", name, err)
	}

	startCtx, cancel := context.WithTimeout(ctx, constants.ServiceStartTimeout)
	defer cancel()

	for _, spec := range specs {
		proc := newSupervisedProcess(name, spec, m.logger, nil)
		proc.onUnexpectedExit = func() { m.handleUnexpectedExit(name, proc) }

		if err := proc.start(startCtx); err != nil {
			for _, started := range instance.procs {
				_ = started.stop(context.Background())
			}
			_ = instance.machine.Event(ctx, EventStop)
			return nil, err
		}
		instance.procs = append(instance.procs, proc)
	}

	if err := instance.machine.Event(ctx, EventStartDone); err != nil {
		return nil, err
	}

	return instance, nil
}

// stopInstanceLocked stops all processes of an instance. Caller holds m.mu.
func (m *Manager) stopInstanceLocked(ctx context.Context, instance *serviceInstance) error {
	var firstErr error
	for _, proc := range instance.procs {
		if err := proc.stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return firstErr
	}

	if err := instance.machine.Event(ctx, EventStop); err != nil && instance.machine.Current() != StateStopped {
		return err
	}

	return nil
}

// handleUnexpectedExit runs on the watcher goroutine of a crashed process.
// The first crash inside the degraded window earns one automatic restart of
// the whole service; a second one degrades it until the next reconcile.
func (m *Manager) handleUnexpectedExit(name string, crashed *supervisedProcess) {
	m.mu.Lock()

	instance, ok := m.services[name]
	if !ok || !instanceOwns(instance, crashed) {
		// A reconcile replaced this instance while the exit was in flight.
		m.mu.Unlock()
		return
	}

	cfg := m.activeCfg

	if _, burned := m.recentExits.Load(name); burned {
		m.logger.Errorf("Service %s crashed twice within %s, marking degraded", name, constants.ServiceDegradedWindow)
		metrics.IncErrorCount(metrics.ComponentServiceManager, name)
		if err := instance.machine.Event(context.Background(), EventDegrade); err != nil {
			m.logger.Debugf("Service %s: %v", name, err)
		}
		for _, proc := range instance.procs {
			_ = proc.stop(context.Background())
		}
		m.mu.Unlock()
		return
	}

	m.recentExits.Set(name, 1)
	delay := instance.restart.NextBackOff()
	m.mu.Unlock()

	m.logger.Warnf("Service %s crashed, restarting once in %s", name, delay)
	time.Sleep(delay)

	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-check: a reconcile may have replaced or removed the service while
	// the restart delay elapsed.
	if current, ok := m.services[name]; !ok || current != instance {
		return
	}

	for _, proc := range instance.procs {
		_ = proc.stop(context.Background())
	}

	if cfg == nil {
		return
	}

	fresh, err := m.startInstanceLocked(context.Background(), name, instance.paramsKey, cfg)
	if err != nil {
		sentry.ReportServiceError(m.logger, name, "restart failed: %v", err)
		metrics.IncErrorCount(metrics.ComponentServiceManager, name)
		if err := instance.machine.Event(context.Background(), EventDegrade); err != nil {
			m.logger.Debugf("Service %s: %v", name, err)
		}
		return
	}

	m.services[name] = fresh
}

func instanceOwns(instance *serviceInstance, proc *supervisedProcess) bool {
	for _, candidate := range instance.procs {
		if candidate == proc {
			return true
		}
	}
	return false
}

// paramsKey canonicalizes a parameter object for change detection. Map keys
// marshal sorted, so key order in the document never forces a restart.
func paramsKey(params configstore.ServiceParams) (string, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize service parameters: %w", err)
	}
	return string(raw), nil
}

func newRestartBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = constants.ServiceRestartDelay
	b.MaxInterval = constants.ServiceDegradedWindow
	b.MaxElapsedTime = 0
	return b
}
