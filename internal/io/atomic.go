// Package io writes rxfilter's output artifacts. Every file is written to a
// temporary sibling and renamed into place on Commit, so readers see either
// the previous file or the complete new one.
package io

/*
rxfilter — prunes dead and redirecting domains from ad-blocking filter lists
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultBufferSize is the write buffer in front of the temporary file.
const DefaultBufferSize = 64 * 1024

var (
	// ErrFileCommitted is returned by writes after Commit or Abort.
	ErrFileCommitted = errors.New("atomic file already committed or aborted")
)

// AtomicFile is a buffered writer whose content becomes visible at its
// final path only once Commit succeeds. It is safe for concurrent use.
type AtomicFile struct {
	mu        sync.Mutex
	file      *os.File
	bufWriter *bufio.Writer
	tempPath  string
	finalPath string
	written   int64
	done      bool
}

// Create opens a temporary file next to path. The directory is created if
// needed.
func Create(path string) (*AtomicFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	file, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	// CreateTemp opens with 0600.
	if err := file.Chmod(0o644); err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())
		return nil, fmt.Errorf("failed to set mode on %s: %w", file.Name(), err)
	}
	return &AtomicFile{
		file:      file,
		bufWriter: bufio.NewWriterSize(file, DefaultBufferSize),
		tempPath:  file.Name(),
		finalPath: path,
	}, nil
}

// Path returns the final path of the file.
func (f *AtomicFile) Path() string { return f.finalPath }

// Write implements io.Writer.
func (f *AtomicFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return 0, ErrFileCommitted
	}
	n, err := f.bufWriter.Write(p)
	f.written += int64(n)
	return n, err
}

// WriteString implements io.StringWriter.
func (f *AtomicFile) WriteString(s string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return 0, ErrFileCommitted
	}
	n, err := f.bufWriter.WriteString(s)
	f.written += int64(n)
	return n, err
}

// Written returns the number of bytes accepted so far.
func (f *AtomicFile) Written() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written
}

// Commit flushes, syncs and closes the temporary file and renames it to the
// final path. On any failure the temporary file is removed and the final
// path is left untouched.
func (f *AtomicFile) Commit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return ErrFileCommitted
	}
	f.done = true

	if err := f.bufWriter.Flush(); err != nil {
		f.discard()
		return fmt.Errorf("failed to flush %s: %w", f.finalPath, err)
	}
	if err := f.file.Sync(); err != nil {
		f.discard()
		return fmt.Errorf("failed to sync %s: %w", f.finalPath, err)
	}
	if err := f.file.Close(); err != nil {
		_ = os.Remove(f.tempPath)
		return fmt.Errorf("failed to close %s: %w", f.finalPath, err)
	}
	if err := os.Rename(f.tempPath, f.finalPath); err != nil {
		_ = os.Remove(f.tempPath)
		return fmt.Errorf("failed to rename %s to %s: %w", f.tempPath, f.finalPath, err)
	}
	return nil
}

// Abort drops everything written. It is a no-op after Commit, so it can be
// deferred right after Create.
func (f *AtomicFile) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return
	}
	f.done = true
	f.discard()
}

func (f *AtomicFile) discard() {
	_ = f.file.Close()
	_ = os.Remove(f.tempPath)
}

// WriteFile writes the file at path atomically with the content produced by
// fill. Nothing is left at path when fill fails.
func WriteFile(path string, fill func(f *AtomicFile) error) error {
	f, err := Create(path)
	if err != nil {
		return err
	}
	defer f.Abort()
	if err := fill(f); err != nil {
		return err
	}
	return f.Commit()
}
