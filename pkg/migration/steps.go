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

package migration

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/factorykit/provision-core/pkg/constants"
	"github.com/factorykit/provision-core/pkg/envstore"
)

// BuiltinSteps returns the upgrade steps every deployment of this server
// carries. New steps append with the next sequence number; existing entries
// never change once shipped.
func BuiltinSteps() []Step {
	return []Step{
		{Seq: 1, Name: "remove legacy bin directory", Apply: removeLegacyBinDir},
		{Seq: 2, Name: "create parameters directory", Apply: createParametersDir},
		{Seq: 3, Name: "reject legacy endpoint overrides in active configuration", Apply: rejectLegacyEndpointKeys},
	}
}

// removeLegacyBinDir deletes the bin/ directory that older releases used for
// bundled helper executables. Helpers now ship inside resource bundles.
func removeLegacyBinDir(ctx context.Context, env *envstore.Store) error {
	exists, err := env.FS().PathExists(ctx, env.BinDir())
	if err != nil {
		return fmt.Errorf("failed to probe %s: %w", env.BinDir(), err)
	}
	if !exists {
		return nil
	}

	return env.FS().RemoveAll(ctx, env.BinDir())
}

// createParametersDir backfills the parameters directory and its index file
// for environments created before parameters existed.
func createParametersDir(ctx context.Context, env *envstore.Store) error {
	if err := env.FS().EnsureDirectory(ctx, env.ParametersDir()); err != nil {
		return err
	}

	exists, err := env.FS().PathExists(ctx, env.ParametersFile())
	if err != nil {
		return fmt.Errorf("failed to probe parameters file: %w", err)
	}
	if exists {
		return nil
	}

	return env.FS().WriteFile(ctx, env.ParametersFile(),
		[]byte("{\"files\": [], \"dirs\": []}\n"), constants.EnvFilePerm)
}

// rejectLegacyEndpointKeys fails the upgrade when the active configuration
// still carries top-level ip/port overrides. Those keys conflicted with the
// server's own listener and were removed from the schema; the operator has to
// re-stage a clean document before this server version can run.
func rejectLegacyEndpointKeys(ctx context.Context, env *envstore.Store) error {
	hash, ok, err := env.GetActiveConfigHash(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	raw, err := env.ReadConfigDocument(ctx, hash)
	if err != nil {
		return fmt.Errorf("failed to read active configuration %s: %w", hash, err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("active configuration %s is not valid JSON: %w", hash, err)
	}

	for _, key := range []string{"ip", "port"} {
		if _, found := doc[key]; found {
			return fmt.Errorf(
				"active configuration %s still contains the removed top-level %q key; re-stage the document without per-server endpoint overrides",
				hash, key)
		}
	}

	return nil
}
