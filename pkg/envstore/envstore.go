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

// Package envstore manages the on-disk environment root of the provisioning
// server: resource payloads, staged configuration documents, the active
// configuration pointer and the migration version marker.
//
// All mutations of the pointer and the version marker follow a
// write-temp-then-rename discipline so a crash mid-write never leaves a torn
// file behind.
package envstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	gzip "github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/factorykit/provision-core/pkg/constants"
	"github.com/factorykit/provision-core/pkg/logger"
	"github.com/factorykit/provision-core/pkg/metrics"
	"github.com/factorykit/provision-core/pkg/service/filesystem"
)

// Parameters is the schema of parameters/parameters.json.
type Parameters struct {
	Files []string `json:"files"`
	Dirs  []string `json:"dirs"`
}

// Store provides accessors for the provisioning environment rooted at a
// single directory. It is safe for concurrent use as long as version commits
// and pointer swaps are serialized by the caller (ConfigStore and
// MigrationRunner both do).
type Store struct {
	root   string
	fs     filesystem.Service
	logger *zap.SugaredLogger
}

// NewStore creates a Store for the given environment root.
func NewStore(root string, fs filesystem.Service) *Store {
	return &Store{
		root:   root,
		fs:     fs,
		logger: logger.For(logger.ComponentEnvironmentStore),
	}
}

// Root returns the environment root directory.
func (s *Store) Root() string { return s.root }

// FS exposes the underlying filesystem service for collaborators (migration
// steps, the bridge's parameter lookups) that operate on paths inside the
// environment.
func (s *Store) FS() filesystem.Service { return s.fs }

// BinDir is the legacy executable directory. Early migrations remove it.
func (s *Store) BinDir() string { return filepath.Join(s.root, constants.EnvBinDir) }

// ResourcesDir holds content-addressed bundle payloads.
func (s *Store) ResourcesDir() string { return filepath.Join(s.root, constants.EnvResourcesDir) }

// ParametersDir holds operator-managed parameter files served to devices.
func (s *Store) ParametersDir() string { return filepath.Join(s.root, constants.EnvParametersDir) }

// ConfigDir holds staged configuration documents, one per content hash.
func (s *Store) ConfigDir() string { return filepath.Join(s.root, constants.EnvConfigDir) }

// RunDir holds runtime artifacts of supervised services (pid files, lease
// files, generated daemon configs). Nothing in it survives a restart
// meaningfully; keeping it apart from ConfigDir keeps the staged document
// directory free of service droppings.
func (s *Store) RunDir() string { return filepath.Join(s.root, constants.EnvRunDir) }

// ParametersFile is the parameters index file.
func (s *Store) ParametersFile() string {
	return filepath.Join(s.ParametersDir(), constants.EnvParametersFile)
}

func (s *Store) versionPath() string {
	return filepath.Join(s.root, constants.EnvVersionMarker)
}

func (s *Store) activePointerPath() string {
	return filepath.Join(s.root, constants.EnvActivePointer)
}

// ConfigDocumentPath returns the path of the staged configuration document
// for the given content hash.
func (s *Store) ConfigDocumentPath(hash string) string {
	return filepath.Join(s.ConfigDir(), hash+".json")
}

// ResourcePath returns the full path of a resource by name.
func (s *Store) ResourcePath(name string) string {
	return filepath.Join(s.ResourcesDir(), name)
}

// Init creates the on-disk layout if absent. It returns an error wrapping
// ErrEnvironmentCorrupt when an incompatible partial layout exists: the root
// is a file, the version marker is unparsable, or the active pointer
// references a document that is not materialized.
func (s *Store) Init(ctx context.Context) error {
	if exists, err := s.fs.PathExists(ctx, s.root); err != nil {
		return fmt.Errorf("failed to probe environment root %s: %w", s.root, err)
	} else if exists {
		info, err := s.fs.Stat(ctx, s.root)
		if err != nil {
			return fmt.Errorf("failed to stat environment root %s: %w", s.root, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: root %s exists but is not a directory", ErrEnvironmentCorrupt, s.root)
		}
	}

	for _, dir := range []string{s.root, s.ResourcesDir(), s.ParametersDir(), s.ConfigDir(), s.RunDir()} {
		if err := s.fs.EnsureDirectory(ctx, dir); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	// Reject a torn or hand-edited version marker before anything trusts it.
	if _, err := s.ReadVersion(ctx); err != nil {
		return err
	}

	if hash, ok, err := s.GetActiveConfigHash(ctx); err != nil {
		return err
	} else if ok {
		docExists, err := s.fs.PathExists(ctx, s.ConfigDocumentPath(hash))
		if err != nil {
			return fmt.Errorf("failed to probe active configuration document: %w", err)
		}
		if !docExists {
			return fmt.Errorf("%w: active pointer references missing document %s", ErrEnvironmentCorrupt, hash)
		}
	}

	if exists, err := s.fs.PathExists(ctx, s.ParametersFile()); err != nil {
		return fmt.Errorf("failed to probe parameters file: %w", err)
	} else if !exists {
		empty := []byte("{\"files\": [], \"dirs\": []}\n")
		if err := s.fs.WriteFile(ctx, s.ParametersFile(), empty, constants.EnvFilePerm); err != nil {
			return fmt.Errorf("failed to seed parameters file: %w", err)
		}
	}

	s.logger.Infof("Environment initialized at %s", s.root)

	return nil
}

// ReadVersion returns the recorded migration version, 0 if unset.
func (s *Store) ReadVersion(ctx context.Context) (int, error) {
	exists, err := s.fs.PathExists(ctx, s.versionPath())
	if err != nil {
		return 0, fmt.Errorf("failed to probe version marker: %w", err)
	}
	if !exists {
		return 0, nil
	}

	raw, err := s.fs.ReadFile(ctx, s.versionPath())
	if err != nil {
		return 0, fmt.Errorf("failed to read version marker: %w", err)
	}

	version, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || version < 0 {
		return 0, fmt.Errorf("%w: unparsable version marker %q", ErrEnvironmentCorrupt, string(raw))
	}

	return version, nil
}

// CommitVersion durably records migration version n. The write goes to a
// temp file first and is then renamed over the marker, so a crash never
// yields a torn version file.
func (s *Store) CommitVersion(ctx context.Context, n int) error {
	if err := s.atomicWrite(ctx, s.versionPath(), []byte(strconv.Itoa(n)+"\n")); err != nil {
		return fmt.Errorf("failed to commit version %d: %w", n, err)
	}

	metrics.SetMigrationVersion(n)
	s.logger.Infof("Committed migration version %d", n)

	return nil
}

// SwapActiveConfig atomically repoints the active-configuration pointer to a
// configuration that is already fully materialized on disk.
func (s *Store) SwapActiveConfig(ctx context.Context, hash string) error {
	exists, err := s.fs.PathExists(ctx, s.ConfigDocumentPath(hash))
	if err != nil {
		return fmt.Errorf("failed to probe configuration document %s: %w", hash, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrConfigNotMaterialized, hash)
	}

	if err := s.atomicWrite(ctx, s.activePointerPath(), []byte(hash+"\n")); err != nil {
		return fmt.Errorf("failed to swap active configuration to %s: %w", hash, err)
	}

	s.logger.Infof("Active configuration now %s", hash)

	return nil
}

// GetActiveConfigHash returns the active configuration hash. The second
// return value is false when no configuration has ever been activated.
func (s *Store) GetActiveConfigHash(ctx context.Context) (string, bool, error) {
	exists, err := s.fs.PathExists(ctx, s.activePointerPath())
	if err != nil {
		return "", false, fmt.Errorf("failed to probe active pointer: %w", err)
	}
	if !exists {
		return "", false, nil
	}

	raw, err := s.fs.ReadFile(ctx, s.activePointerPath())
	if err != nil {
		return "", false, fmt.Errorf("failed to read active pointer: %w", err)
	}

	hash := strings.TrimSpace(string(raw))
	if hash == "" {
		return "", false, fmt.Errorf("%w: empty active pointer", ErrEnvironmentCorrupt)
	}

	return hash, true, nil
}

// AddResource stores a payload under its content-addressed name. Adding the
// same bytes twice is a no-op; adding different bytes under an existing name
// fails with ErrResourceCollision. Gzip payloads are integrity-checked before
// they are accepted.
func (s *Store) AddResource(ctx context.Context, name string, data []byte) error {
	if strings.HasSuffix(name, ".gz") {
		if err := checkGzipIntegrity(data); err != nil {
			return fmt.Errorf("resource %s failed gzip integrity check: %w", name, err)
		}
	}

	dst := s.ResourcePath(name)

	exists, err := s.fs.PathExists(ctx, dst)
	if err != nil {
		return fmt.Errorf("failed to probe resource %s: %w", name, err)
	}
	if exists {
		existing, err := s.fs.ReadFile(ctx, dst)
		if err != nil {
			return fmt.Errorf("failed to read existing resource %s: %w", name, err)
		}
		if bytes.Equal(existing, data) {
			s.logger.Debugf("Resource already present, skipping: %s", name)
			return nil
		}
		return fmt.Errorf("%w: %s", ErrResourceCollision, name)
	}

	if err := s.atomicWrite(ctx, dst, data); err != nil {
		return fmt.Errorf("failed to add resource %s: %w", name, err)
	}

	s.logger.Infof("Resource added: %s", name)

	return nil
}

// HasResource reports whether a resource with the given name exists.
func (s *Store) HasResource(ctx context.Context, name string) (bool, error) {
	return s.fs.PathExists(ctx, s.ResourcePath(name))
}

// WriteConfigDocument materializes a configuration document under ConfigDir.
func (s *Store) WriteConfigDocument(ctx context.Context, hash string, data []byte) error {
	return s.atomicWrite(ctx, s.ConfigDocumentPath(hash), data)
}

// ReadConfigDocument reads a staged configuration document by hash.
func (s *Store) ReadConfigDocument(ctx context.Context, hash string) ([]byte, error) {
	return s.fs.ReadFile(ctx, s.ConfigDocumentPath(hash))
}

// ListConfigDocuments returns the hashes of all staged documents, sorted by
// modification time, most recent first.
func (s *Store) ListConfigDocuments(ctx context.Context) ([]string, error) {
	entries, err := s.fs.ReadDir(ctx, s.ConfigDir())
	if err != nil {
		return nil, fmt.Errorf("failed to list configuration documents: %w", err)
	}

	type staged struct {
		hash    string
		modTime int64
	}

	var docs []staged
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat configuration document %s: %w", name, err)
		}
		docs = append(docs, staged{
			hash:    strings.TrimSuffix(name, ".json"),
			modTime: info.ModTime().UnixNano(),
		})
	}

	// Most recent first; ties broken by hash for a stable order.
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].modTime != docs[j].modTime {
			return docs[i].modTime > docs[j].modTime
		}
		return docs[i].hash > docs[j].hash
	})

	hashes := make([]string, 0, len(docs))
	for _, doc := range docs {
		hashes = append(hashes, doc.hash)
	}

	return hashes, nil
}

// atomicWrite writes data to a temp file next to path and renames it into
// place. Rename is atomic on the same filesystem mount, so readers observe
// either the old or the new content, never a partial write.
func (s *Store) atomicWrite(ctx context.Context, path string, data []byte) error {
	tmp := path + ".tmp"

	if err := s.fs.WriteFile(ctx, tmp, data, constants.EnvFilePerm); err != nil {
		return fmt.Errorf("failed to write temp file %s: %w", tmp, err)
	}

	if err := s.fs.Rename(ctx, tmp, path); err != nil {
		return fmt.Errorf("failed to rename %s into place: %w", tmp, err)
	}

	return nil
}

// checkGzipIntegrity decompresses the payload to verify it is a valid gzip
// stream. Corrupt uploads are rejected here instead of failing later on the
// factory line.
func checkGzipIntegrity(data []byte) error {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	if _, err := io.Copy(io.Discard, reader); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}
