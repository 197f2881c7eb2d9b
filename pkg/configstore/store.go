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

import (
	"context"
	"errors"
	"fmt"

	"github.com/tiendc/go-deepcopy"
	"go.uber.org/zap"

	"github.com/factorykit/provision-core/pkg/ctxutil/ctxmutex"
	"github.com/factorykit/provision-core/pkg/ctxutil/ctxrwmutex"
	"github.com/factorykit/provision-core/pkg/envstore"
	"github.com/factorykit/provision-core/pkg/logger"
	"github.com/factorykit/provision-core/pkg/metrics"
)

// Store manages the configuration lifecycle against an environment.
//
// Mutations (Stage, Activate) are serialized behind a single mutation lock;
// reads never block and always observe a fully-formed configuration because
// the active pointer swap is atomic at the filesystem level.
type Store struct {
	env        *envstore.Store
	validators map[string]ServiceValidator
	logger     *zap.SugaredLogger

	// mutexAtomicUpdate serializes full stage/activate cycles so two
	// deployments never interleave. Context aware to avoid deadlocks.
	mutexAtomicUpdate *ctxmutex.CtxMutex

	// mutexReadOrWrite guards individual document reads and writes. Multiple
	// readers proceed in parallel; a writer excludes them only for the
	// duration of the actual file operations.
	mutexReadOrWrite *ctxrwmutex.CtxRWMutex
}

// NewStore creates a Store. validators maps service-type name to its
// parameter validator; the service registry provides it at startup.
func NewStore(env *envstore.Store, validators map[string]ServiceValidator) *Store {
	return &Store{
		env:               env,
		validators:        validators,
		logger:            logger.For(logger.ComponentConfigStore),
		mutexAtomicUpdate: ctxmutex.NewCtxMutex(),
		mutexReadOrWrite:  ctxrwmutex.NewCtxRWMutex(),
	}
}

// Validate parses and validates a document without any side effects. The
// returned Configuration carries its content hash.
func (s *Store) Validate(ctx context.Context, raw []byte) (*Configuration, error) {
	config, err := parseDocument(raw)
	if err != nil {
		return nil, err
	}

	if err := validateSchema(config, s.validators); err != nil {
		return nil, err
	}

	if err := s.validateResources(ctx, config); err != nil {
		return nil, err
	}

	return config, nil
}

// validateResources confirms every resource referenced by an active bundle is
// present in the environment.
func (s *Store) validateResources(ctx context.Context, config *Configuration) error {
	var issues []string

	for _, bundle := range config.ActiveBundles() {
		for _, resource := range bundle.Resources {
			present, err := s.env.HasResource(ctx, resource)
			if err != nil {
				return fmt.Errorf("failed to probe resource %s: %w", resource, err)
			}
			if !present {
				issues = append(issues, fmt.Sprintf("resource %q for bundle %q not found", resource, bundle.ID))
			}
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}

	return nil
}

// Stage validates the document and materializes it under the environment,
// returning its content hash without activating it. Staging a byte-identical
// or whitespace-variant duplicate returns the same hash and stores nothing
// new.
func (s *Store) Stage(ctx context.Context, raw []byte) (string, error) {
	if err := s.mutexAtomicUpdate.Lock(ctx); err != nil {
		return "", fmt.Errorf("failed to acquire mutation lock: %w", err)
	}
	defer s.mutexAtomicUpdate.Unlock()

	config, err := s.Validate(ctx, raw)
	if err != nil {
		return "", err
	}

	canonical, err := config.CanonicalBytes()
	if err != nil {
		return "", err
	}

	if err := s.mutexReadOrWrite.Lock(ctx); err != nil {
		return "", fmt.Errorf("failed to acquire write lock: %w", err)
	}
	defer s.mutexReadOrWrite.Unlock()

	exists, err := s.env.FS().PathExists(ctx, s.env.ConfigDocumentPath(config.hash))
	if err != nil {
		return "", fmt.Errorf("failed to probe staged document: %w", err)
	}
	if exists {
		s.logger.Infof("Configuration %s already staged, deduplicated", config.hash)
		return config.hash, nil
	}

	if err := s.env.WriteConfigDocument(ctx, config.hash, canonical); err != nil {
		return "", err
	}

	s.logger.Infof("Configuration staged: %s", config.hash)

	return config.hash, nil
}

// Activate atomically repoints the active configuration to a previously
// staged hash. It fails with ErrConfigNotStaged when the hash was never
// staged or its resources are missing; the previously active configuration
// stays in place in every failure case.
func (s *Store) Activate(ctx context.Context, hash string) error {
	if err := s.mutexAtomicUpdate.Lock(ctx); err != nil {
		return fmt.Errorf("failed to acquire mutation lock: %w", err)
	}
	defer s.mutexAtomicUpdate.Unlock()

	raw, err := s.env.ReadConfigDocument(ctx, hash)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrConfigNotStaged, hash)
	}

	// Configurations are immutable once staged, so no re-validation of the
	// document itself; resources can have been garbage-collected since
	// staging, so those are re-checked.
	config, err := parseDocument(raw)
	if err != nil {
		return fmt.Errorf("staged document %s unreadable: %w", hash, err)
	}
	if err := s.validateResources(ctx, config); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConfigNotStaged, hash, err)
	}

	if err := s.mutexReadOrWrite.Lock(ctx); err != nil {
		return fmt.Errorf("failed to acquire write lock: %w", err)
	}
	defer s.mutexReadOrWrite.Unlock()

	if err := s.env.SwapActiveConfig(ctx, hash); err != nil {
		if errors.Is(err, envstore.ErrConfigNotMaterialized) {
			return fmt.Errorf("%w: %s", ErrConfigNotStaged, hash)
		}
		return err
	}

	metrics.IncConfigActivations()

	return nil
}

// GetActive returns a deep copy of the active configuration, so callers can
// never mutate the stored document. It fails with ErrNoActiveConfig before
// the first activation.
func (s *Store) GetActive(ctx context.Context) (*Configuration, error) {
	if err := s.mutexReadOrWrite.RLock(ctx); err != nil {
		return nil, fmt.Errorf("failed to acquire read lock: %w", err)
	}
	defer s.mutexReadOrWrite.RUnlock()

	hash, ok, err := s.env.GetActiveConfigHash(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoActiveConfig
	}

	raw, err := s.env.ReadConfigDocument(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to read active configuration %s: %w", hash, err)
	}

	config, err := parseDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("active configuration %s unreadable: %w", hash, err)
	}

	var copied Configuration
	if err := deepcopy.Copy(&copied, config); err != nil {
		return nil, fmt.Errorf("failed to copy active configuration: %w", err)
	}
	copied.hash = config.hash

	return &copied, nil
}

// ListHistory returns all staged configuration hashes, most recent first.
// Rollback is Activate of an older entry.
func (s *Store) ListHistory(ctx context.Context) ([]string, error) {
	if err := s.mutexReadOrWrite.RLock(ctx); err != nil {
		return nil, fmt.Errorf("failed to acquire read lock: %w", err)
	}
	defer s.mutexReadOrWrite.RUnlock()

	return s.env.ListConfigDocuments(ctx)
}
