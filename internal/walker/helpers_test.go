package walker

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// memTree builds an in-memory tree. Paths ending in "/" are directories,
// everything else is a file holding its own path as content.
func memTree(t testing.TB, paths ...string) afero.Fs {
	t.Helper()

	fsys := afero.NewMemMapFs()
	for _, p := range paths {
		if strings.HasSuffix(p, "/") {
			require.NoError(t, fsys.MkdirAll(strings.TrimSuffix(p, "/"), 0755))
			continue
		}
		require.NoError(t, fsys.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, afero.WriteFile(fsys, p, []byte(p), 0644))
	}
	return fsys
}

// recorder remembers visited paths and answers with preset signals.
type recorder struct {
	mu      sync.Mutex
	visited []string
	signals map[string]Signal
	fail    map[string]error
}

func newRecorder(signals map[string]Signal) *recorder {
	return &recorder{signals: signals}
}

func (r *recorder) Handle(entry Entry) (Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.visited = append(r.visited, entry.Path)
	if err, ok := r.fail[entry.Path]; ok {
		return 0, err
	}
	if s, ok := r.signals[entry.Path]; ok {
		return s, nil
	}
	return Continue, nil
}

func (r *recorder) Visited() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.visited)
}

// failingFs refuses to open the listed directories.
type failingFs struct {
	afero.Fs
	deny map[string]bool
}

func (f failingFs) Open(name string) (afero.File, error) {
	if f.deny[name] {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return f.Fs.Open(name)
}

// reversedFs lists directory children in reverse name order, standing in
// for a file system whose enumeration order is not sorted.
type reversedFs struct {
	afero.Fs
}

func (f reversedFs) Open(name string) (afero.File, error) {
	file, err := f.Fs.Open(name)
	if err != nil {
		return nil, err
	}
	return reversedFile{file}, nil
}

type reversedFile struct {
	afero.File
}

func (f reversedFile) Readdir(count int) ([]os.FileInfo, error) {
	infos, err := f.File.Readdir(count)
	slices.Reverse(infos)
	return infos, err
}

func newEngine(t testing.TB, h Handler, fsys afero.Fs, opts ...Option) *Engine {
	t.Helper()
	engine, err := New(h, append([]Option{WithFs(fsys)}, opts...)...)
	require.NoError(t, err)
	return engine
}
