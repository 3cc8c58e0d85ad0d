// Package disktest provides an in-memory disk.Codec for tests.
package disktest

import (
	"context"
	"errors"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// MemCodec creates image files as sparse files on an afero filesystem and
// keeps the volume contents in memory. Extract writes every file, whatever
// its drive, below the destination.
type MemCodec struct {
	Fs afero.Fs
	// FailOn makes the named operation ("create", "format", "mkdir",
	// "write", "extract") fail.
	FailOn string

	mu      sync.Mutex
	formats int
	files   map[string][]byte
	dirs    []string
}

// NewMemCodec returns a MemCodec on fs.
func NewMemCodec(fs afero.Fs) *MemCodec {
	return &MemCodec{Fs: fs, files: map[string][]byte{}}
}

func (m *MemCodec) fail(op string) error {
	if m.FailOn == op {
		return errors.New(op + " failed")
	}
	return nil
}

func (m *MemCodec) Create(_ context.Context, imagePath string, size int64) error {
	if err := m.fail("create"); err != nil {
		return err
	}
	if err := m.Fs.MkdirAll(filepath.Dir(imagePath), 0755); err != nil {
		return err
	}
	f, err := m.Fs.Create(imagePath)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(size)
}

func (m *MemCodec) Format(_ context.Context, _ string) error {
	if err := m.fail("format"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.formats++
	m.files = map[string][]byte{}
	m.dirs = nil
	return nil
}

func (m *MemCodec) Mkdir(_ context.Context, _, drive, dir string) error {
	if err := m.fail("mkdir"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs = append(m.dirs, drive+":"+dir)
	return nil
}

func (m *MemCodec) Write(_ context.Context, _, drive, name string, data []byte) error {
	if err := m.fail("write"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[drive+":"+path.Clean("/"+name)] = append([]byte(nil), data...)
	return nil
}

func (m *MemCodec) Extract(_ context.Context, _, dest string) error {
	if err := m.fail("extract"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, data := range m.files {
		_, rel, _ := strings.Cut(name, ":")
		p := filepath.Join(dest, filepath.FromSlash(rel))
		if err := m.Fs.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return err
		}
		if err := afero.WriteFile(m.Fs, p, data, 0644); err != nil {
			return err
		}
	}
	return nil
}

// Formats returns how many times an existing image was reformatted.
func (m *MemCodec) Formats() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.formats
}

// File returns the content of a file written to the given drive.
func (m *MemCodec) File(drive, name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[drive+":"+path.Clean("/"+name)]
	return data, ok
}

// Files returns the names of all stored files as "drive:/path", sorted.
func (m *MemCodec) Files() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.files))
	for name := range m.files {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Dirs returns the directories created, in order.
func (m *MemCodec) Dirs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.dirs...)
}

// Guest simulates the guest writing a file to a drive while the emulator runs.
func (m *MemCodec) Guest(drive, name string, data []byte) {
	_ = m.Write(context.Background(), "", drive, name, data)
}
