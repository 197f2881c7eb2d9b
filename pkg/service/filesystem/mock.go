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
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockFileSystem is an in-memory implementation of the filesystem Service.
// Individual operations can be overridden with the XxxFunc fields; anything
// not overridden runs against the in-memory tree.
type MockFileSystem struct {
	EnsureDirectoryFunc func(ctx context.Context, path string) error
	ReadFileFunc        func(ctx context.Context, path string) ([]byte, error)
	WriteFileFunc       func(ctx context.Context, path string, data []byte, perm os.FileMode) error
	PathExistsFunc      func(ctx context.Context, path string) (bool, error)
	RemoveFunc          func(ctx context.Context, path string) error
	RemoveAllFunc       func(ctx context.Context, path string) error
	StatFunc            func(ctx context.Context, path string) (os.FileInfo, error)
	ChmodFunc           func(ctx context.Context, path string, mode os.FileMode) error
	ReadDirFunc         func(ctx context.Context, path string) ([]os.DirEntry, error)
	GlobFunc            func(ctx context.Context, pattern string) ([]string, error)
	RenameFunc          func(ctx context.Context, oldPath, newPath string) error

	mu    sync.RWMutex
	files map[string]*mockEntry
}

type mockEntry struct {
	data    []byte
	mode    os.FileMode
	modTime time.Time
	isDir   bool
}

// NewMockFileSystem creates a new MockFileSystem instance.
func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{
		files: make(map[string]*mockEntry),
	}
}

func (m *MockFileSystem) EnsureDirectory(ctx context.Context, path string) error {
	if m.EnsureDirectoryFunc != nil {
		return m.EnsureDirectoryFunc(ctx, path)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureDirLocked(path)
	return nil
}

func (m *MockFileSystem) ensureDirLocked(path string) {
	clean := filepath.Clean(path)
	for clean != "/" && clean != "." {
		if entry, ok := m.files[clean]; !ok || !entry.isDir {
			m.files[clean] = &mockEntry{isDir: true, mode: 0755 | os.ModeDir, modTime: time.Now()}
		}
		clean = filepath.Dir(clean)
	}
}

func (m *MockFileSystem) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if m.ReadFileFunc != nil {
		return m.ReadFileFunc(ctx, path)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.files[filepath.Clean(path)]
	if !ok || entry.isDir {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}

	out := make([]byte, len(entry.data))
	copy(out, entry.data)
	return out, nil
}

func (m *MockFileSystem) WriteFile(ctx context.Context, path string, data []byte, perm os.FileMode) error {
	if m.WriteFileFunc != nil {
		return m.WriteFileFunc(ctx, path, data, perm)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.ensureDirLocked(filepath.Dir(path))

	stored := make([]byte, len(data))
	copy(stored, data)
	m.files[filepath.Clean(path)] = &mockEntry{data: stored, mode: perm, modTime: time.Now()}
	return nil
}

func (m *MockFileSystem) PathExists(ctx context.Context, path string) (bool, error) {
	if m.PathExistsFunc != nil {
		return m.PathExistsFunc(ctx, path)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.files[filepath.Clean(path)]
	return ok, nil
}

func (m *MockFileSystem) Remove(ctx context.Context, path string) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, path)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	clean := filepath.Clean(path)
	if _, ok := m.files[clean]; !ok {
		return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrNotExist}
	}

	delete(m.files, clean)
	return nil
}

func (m *MockFileSystem) RemoveAll(ctx context.Context, path string) error {
	if m.RemoveAllFunc != nil {
		return m.RemoveAllFunc(ctx, path)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := filepath.Clean(path)
	for p := range m.files {
		if p == prefix || strings.HasPrefix(p, prefix+string(filepath.Separator)) {
			delete(m.files, p)
		}
	}
	return nil
}

func (m *MockFileSystem) Stat(ctx context.Context, path string) (os.FileInfo, error) {
	if m.StatFunc != nil {
		return m.StatFunc(ctx, path)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	clean := filepath.Clean(path)
	entry, ok := m.files[clean]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
	}

	return &mockFileInfo{name: filepath.Base(clean), entry: entry}, nil
}

func (m *MockFileSystem) Chmod(ctx context.Context, path string, mode os.FileMode) error {
	if m.ChmodFunc != nil {
		return m.ChmodFunc(ctx, path, mode)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.files[filepath.Clean(path)]
	if !ok {
		return &fs.PathError{Op: "chmod", Path: path, Err: fs.ErrNotExist}
	}

	entry.mode = mode
	return nil
}

func (m *MockFileSystem) ReadDir(ctx context.Context, path string) ([]os.DirEntry, error) {
	if m.ReadDirFunc != nil {
		return m.ReadDirFunc(ctx, path)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	dir := filepath.Clean(path)
	if entry, ok := m.files[dir]; !ok || !entry.isDir {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}

	var entries []os.DirEntry
	for p, entry := range m.files {
		if filepath.Dir(p) == dir && p != dir {
			entries = append(entries, &mockDirEntry{name: filepath.Base(p), entry: entry})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

func (m *MockFileSystem) Glob(ctx context.Context, pattern string) ([]string, error) {
	if m.GlobFunc != nil {
		return m.GlobFunc(ctx, pattern)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []string
	for p := range m.files {
		ok, err := filepath.Match(pattern, p)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, p)
		}
	}

	sort.Strings(matches)
	return matches, nil
}

func (m *MockFileSystem) Rename(ctx context.Context, oldPath, newPath string) error {
	if m.RenameFunc != nil {
		return m.RenameFunc(ctx, oldPath, newPath)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	oldClean := filepath.Clean(oldPath)
	entry, ok := m.files[oldClean]
	if !ok {
		return &fs.PathError{Op: "rename", Path: oldPath, Err: fs.ErrNotExist}
	}

	m.ensureDirLocked(filepath.Dir(newPath))
	m.files[filepath.Clean(newPath)] = entry
	delete(m.files, oldClean)
	return nil
}

type mockFileInfo struct {
	name  string
	entry *mockEntry
}

func (fi *mockFileInfo) Name() string       { return fi.name }
func (fi *mockFileInfo) Size() int64        { return int64(len(fi.entry.data)) }
func (fi *mockFileInfo) Mode() os.FileMode  { return fi.entry.mode }
func (fi *mockFileInfo) ModTime() time.Time { return fi.entry.modTime }
func (fi *mockFileInfo) IsDir() bool        { return fi.entry.isDir }
func (fi *mockFileInfo) Sys() interface{}   { return nil }

type mockDirEntry struct {
	name  string
	entry *mockEntry
}

func (de *mockDirEntry) Name() string      { return de.name }
func (de *mockDirEntry) IsDir() bool       { return de.entry.isDir }
func (de *mockDirEntry) Type() os.FileMode { return de.entry.mode.Type() }
func (de *mockDirEntry) Info() (os.FileInfo, error) {
	return &mockFileInfo{name: de.name, entry: de.entry}, nil
}
