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

// Package migration applies ordered, one-shot upgrade steps to the on-disk
// environment. Steps are registered explicitly at startup; a step numbered n
// runs at most once, and the environment's recorded version is always the
// number of the highest successfully applied step.
package migration

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/factorykit/provision-core/pkg/envstore"
	"github.com/factorykit/provision-core/pkg/logger"
)

// Step is a single ordered transform of environment state. Steps are not
// idempotence-safe: the runner guarantees each runs at most once.
type Step struct {
	// Seq is the step's sequence number, strictly positive and unique.
	Seq int

	// Name describes the step in logs and failure messages.
	Name string

	// Apply performs the transform.
	Apply func(ctx context.Context, env *envstore.Store) error
}

// FailedError is the fatal error surfaced when a step fails. The environment
// stays at the last successfully committed version; the server must not enter
// service mode.
type FailedError struct {
	Err  error
	Name string
	Seq  int
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("migration step %d (%s) failed: %v", e.Seq, e.Name, e.Err)
}

func (e *FailedError) Unwrap() error { return e.Err }

// Runner executes registered steps in ascending sequence order.
type Runner struct {
	env    *envstore.Store
	logger *zap.SugaredLogger
	steps  []Step
}

// NewRunner creates a Runner with the given steps. Registration fails on
// duplicate or non-positive sequence numbers so a bad build is caught at
// startup, not mid-upgrade.
func NewRunner(env *envstore.Store, steps []Step) (*Runner, error) {
	seen := make(map[int]string, len(steps))
	for _, step := range steps {
		if step.Seq <= 0 {
			return nil, fmt.Errorf("migration step %q has non-positive sequence number %d", step.Name, step.Seq)
		}
		if prev, ok := seen[step.Seq]; ok {
			return nil, fmt.Errorf("migration steps %q and %q share sequence number %d", prev, step.Name, step.Seq)
		}
		seen[step.Seq] = step.Name
	}

	ordered := make([]Step, len(steps))
	copy(ordered, steps)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	return &Runner{
		env:    env,
		steps:  ordered,
		logger: logger.For(logger.ComponentMigrationRunner),
	}, nil
}

// Run applies every step with a sequence number above the committed version,
// in strictly ascending order, committing the version after each step. The
// first failure stops the run immediately and surfaces a *FailedError; the
// version stays at the last committed step so a later run resumes there.
func (r *Runner) Run(ctx context.Context) error {
	version, err := r.env.ReadVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	pending := 0
	for _, step := range r.steps {
		if step.Seq > version {
			pending++
		}
	}

	if pending == 0 {
		r.logger.Infof("Environment up to date at version %d", version)
		return nil
	}

	r.logger.Infof("Applying %d migration step(s), current version %d", pending, version)

	for _, step := range r.steps {
		if step.Seq <= version {
			continue
		}

		r.logger.Infof("Applying migration step %d: %s", step.Seq, step.Name)

		if err := step.Apply(ctx, r.env); err != nil {
			return &FailedError{Seq: step.Seq, Name: step.Name, Err: err}
		}

		if err := r.env.CommitVersion(ctx, step.Seq); err != nil {
			return &FailedError{Seq: step.Seq, Name: step.Name, Err: err}
		}

		version = step.Seq
	}

	r.logger.Infof("Environment migrated to version %d", version)

	return nil
}

// LatestVersion returns the highest registered sequence number, 0 when no
// steps are registered.
func (r *Runner) LatestVersion() int {
	if len(r.steps) == 0 {
		return 0
	}
	return r.steps[len(r.steps)-1].Seq
}
