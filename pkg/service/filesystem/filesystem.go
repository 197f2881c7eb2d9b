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

package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/factorykit/provision-core/pkg/metrics"
)

// DefaultService is the default implementation of the filesystem Service.
type DefaultService struct{}

// NewDefaultService creates a new DefaultService.
func NewDefaultService() *DefaultService {
	return &DefaultService{}
}

// checkContext checks if the context is done before proceeding with an operation.
func (s *DefaultService) checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// EnsureDirectory creates a directory if it doesn't exist.
func (s *DefaultService) EnsureDirectory(ctx context.Context, path string) error {
	start := time.Now()
	if err := s.checkContext(ctx); err != nil {
		return fmt.Errorf("failed to check context: %w", err)
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- os.MkdirAll(path, 0755)
	}()

	select {
	case err := <-errCh:
		metrics.RecordFilesystemOp("EnsureDirectory", time.Since(start), err)
		if err != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, err)
		}
		return nil
	case <-ctx.Done():
		err := ctx.Err()
		metrics.RecordFilesystemOp("EnsureDirectory", time.Since(start), err)
		return err
	}
}

// ReadFile reads a file's contents respecting the context.
func (s *DefaultService) ReadFile(ctx context.Context, path string) ([]byte, error) {
	start := time.Now()
	if err := s.checkContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to check context: %w", err)
	}

	type result struct {
		err  error
		data []byte
	}

	resCh := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(path)
		resCh <- result{err: err, data: data}
	}()

	select {
	case res := <-resCh:
		metrics.RecordFilesystemOp("ReadFile", time.Since(start), res.err)
		if res.err != nil {
			return nil, res.err
		}
		return res.data, nil
	case <-ctx.Done():
		err := ctx.Err()
		metrics.RecordFilesystemOp("ReadFile", time.Since(start), err)
		return nil, err
	}
}

// WriteFile writes data to a file respecting the context.
func (s *DefaultService) WriteFile(ctx context.Context, path string, data []byte, perm os.FileMode) error {
	start := time.Now()
	if err := s.checkContext(ctx); err != nil {
		return fmt.Errorf("failed to check context: %w", err)
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- os.WriteFile(path, data, perm)
	}()

	select {
	case err := <-errCh:
		metrics.RecordFilesystemOp("WriteFile", time.Since(start), err)
		if err != nil {
			return fmt.Errorf("failed to write file %s: %w", path, err)
		}
		return nil
	case <-ctx.Done():
		err := ctx.Err()
		metrics.RecordFilesystemOp("WriteFile", time.Since(start), err)
		return err
	}
}

// PathExists checks if a path (file or directory) exists.
func (s *DefaultService) PathExists(ctx context.Context, path string) (bool, error) {
	start := time.Now()
	if err := s.checkContext(ctx); err != nil {
		return false, err
	}

	type result struct {
		err    error
		exists bool
	}

	resCh := make(chan result, 1)

	go func() {
		// Use Lstat to handle symlinks properly (don't follow them)
		_, err := os.Lstat(path)
		if os.IsNotExist(err) {
			resCh <- result{err: nil, exists: false}
			return
		}
		if err != nil {
			resCh <- result{err: fmt.Errorf("failed to check if path exists: %w", err), exists: false}
			return
		}
		resCh <- result{err: nil, exists: true}
	}()

	select {
	case res := <-resCh:
		metrics.RecordFilesystemOp("PathExists", time.Since(start), res.err)
		if res.err != nil {
			return false, res.err
		}
		return res.exists, nil
	case <-ctx.Done():
		err := ctx.Err()
		metrics.RecordFilesystemOp("PathExists", time.Since(start), err)
		return false, err
	}
}

// Remove removes a file or directory.
func (s *DefaultService) Remove(ctx context.Context, path string) error {
	start := time.Now()
	if err := s.checkContext(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- os.Remove(path)
	}()

	select {
	case err := <-errCh:
		metrics.RecordFilesystemOp("Remove", time.Since(start), err)
		return err
	case <-ctx.Done():
		err := ctx.Err()
		metrics.RecordFilesystemOp("Remove", time.Since(start), err)
		return err
	}
}

// RemoveAll removes a directory and all its contents.
func (s *DefaultService) RemoveAll(ctx context.Context, path string) error {
	start := time.Now()
	if err := s.checkContext(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- os.RemoveAll(path)
	}()

	select {
	case err := <-errCh:
		metrics.RecordFilesystemOp("RemoveAll", time.Since(start), err)
		if err != nil {
			return fmt.Errorf("failed to remove directory %s: %w", path, err)
		}
		return nil
	case <-ctx.Done():
		err := ctx.Err()
		metrics.RecordFilesystemOp("RemoveAll", time.Since(start), err)
		return err
	}
}

// Stat returns file info.
func (s *DefaultService) Stat(ctx context.Context, path string) (os.FileInfo, error) {
	start := time.Now()
	if err := s.checkContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to check context: %w", err)
	}

	type result struct {
		info os.FileInfo
		err  error
	}

	resCh := make(chan result, 1)

	go func() {
		info, err := os.Stat(path)
		resCh <- result{info, err}
	}()

	select {
	case res := <-resCh:
		metrics.RecordFilesystemOp("Stat", time.Since(start), res.err)
		if res.err != nil {
			return nil, fmt.Errorf("failed to get file info: %w", res.err)
		}
		return res.info, nil
	case <-ctx.Done():
		err := ctx.Err()
		metrics.RecordFilesystemOp("Stat", time.Since(start), err)
		return nil, err
	}
}

// Chmod changes the mode of the named file.
func (s *DefaultService) Chmod(ctx context.Context, path string, mode os.FileMode) error {
	start := time.Now()
	if err := s.checkContext(ctx); err != nil {
		return fmt.Errorf("failed to check context: %w", err)
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- os.Chmod(path, mode)
	}()

	select {
	case err := <-errCh:
		metrics.RecordFilesystemOp("Chmod", time.Since(start), err)
		if err != nil {
			return fmt.Errorf("failed to change mode of file %s: %w", path, err)
		}
		return nil
	case <-ctx.Done():
		err := ctx.Err()
		metrics.RecordFilesystemOp("Chmod", time.Since(start), err)
		return err
	}
}

// ReadDir reads a directory, returning all its directory entries.
func (s *DefaultService) ReadDir(ctx context.Context, path string) ([]os.DirEntry, error) {
	start := time.Now()
	if err := s.checkContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to check context: %w", err)
	}

	type result struct {
		err     error
		entries []os.DirEntry
	}

	resCh := make(chan result, 1)

	go func() {
		entries, err := os.ReadDir(path)
		resCh <- result{err: err, entries: entries}
	}()

	select {
	case res := <-resCh:
		metrics.RecordFilesystemOp("ReadDir", time.Since(start), res.err)
		if res.err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", path, res.err)
		}
		return res.entries, nil
	case <-ctx.Done():
		err := ctx.Err()
		metrics.RecordFilesystemOp("ReadDir", time.Since(start), err)
		return nil, err
	}
}

// Glob is a wrapper around filepath.Glob that respects the context.
func (s *DefaultService) Glob(ctx context.Context, pattern string) ([]string, error) {
	start := time.Now()
	if err := s.checkContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to check context: %w", err)
	}

	type result struct {
		err     error
		matches []string
	}

	resCh := make(chan result, 1)

	go func() {
		matches, err := filepath.Glob(pattern)
		resCh <- result{err: err, matches: matches}
	}()

	select {
	case res := <-resCh:
		metrics.RecordFilesystemOp("Glob", time.Since(start), res.err)
		if res.err != nil {
			return nil, fmt.Errorf("failed to glob pattern %s: %w", pattern, res.err)
		}
		return res.matches, nil
	case <-ctx.Done():
		err := ctx.Err()
		metrics.RecordFilesystemOp("Glob", time.Since(start), err)
		return nil, err
	}
}

// Rename renames (moves) a file or directory from oldPath to newPath.
// This operation is atomic on the same filesystem mount.
func (s *DefaultService) Rename(ctx context.Context, oldPath, newPath string) error {
	start := time.Now()
	if err := s.checkContext(ctx); err != nil {
		return fmt.Errorf("failed to check context: %w", err)
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- os.Rename(oldPath, newPath)
	}()

	select {
	case err := <-errCh:
		metrics.RecordFilesystemOp("Rename", time.Since(start), err)
		if err != nil {
			return fmt.Errorf("failed to rename file %s to %s: %w", oldPath, newPath, err)
		}
		return nil
	case <-ctx.Done():
		err := ctx.Err()
		metrics.RecordFilesystemOp("Rename", time.Since(start), err)
		return err
	}
}
