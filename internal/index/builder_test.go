package index

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/73ai/dirwalk/internal/walker"
)

func zipBytes(t testing.TB, members ...string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		if name[len(name)-1] != '/' {
			_, err = w.Write([]byte("member " + name))
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func testTree(t testing.TB) afero.Fs {
	t.Helper()

	fsys := afero.NewMemMapFs()
	files := map[string][]byte{
		"/r/A.class":        []byte("class A"),
		"/r/pkg/B.class":    []byte("class B"),
		"/r/readme.txt":     []byte("readme"),
		"/r/.git/C.class":   []byte("class C"),
		"/r/lib/app.jar":    zipBytes(t, "META-INF/", "x/D.class", "x/res.txt"),
		"/r/lib/broken.ZIP": []byte("not a zip"),
	}
	for name, data := range files {
		require.NoError(t, afero.WriteFile(fsys, name, data, 0644))
	}
	return fsys
}

func newTestBuilder(t testing.TB, fsys afero.Fs) (*Builder, *Store, *test.Hook) {
	t.Helper()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	store := newTestStore(t)
	config := DefaultBuilderConfig()
	config.Fs = fsys
	config.Logger = logger
	config.Workers = 2

	return NewBuilder(store, config), store, hook
}

func TestBuilder_BuildIndex(t *testing.T) {
	fsys := testTree(t)
	builder, store, hook := newTestBuilder(t, fsys)
	ctx := context.Background()

	stats, err := builder.BuildIndex(ctx, "/r")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Roots)
	assert.Equal(t, int64(3), stats.DirsTraversed)
	assert.Equal(t, int64(1), stats.DirsSkipped)
	assert.Equal(t, int64(2), stats.FilesIndexed)
	assert.Equal(t, int64(1), stats.Archives)
	assert.Equal(t, int64(3), stats.Records)
	assert.Equal(t, int64(1), stats.Errors)
	assert.Zero(t, stats.Unchanged)

	records, err := store.Records(ctx, "")
	require.NoError(t, err)
	var names []string
	for _, rec := range records {
		names = append(names, rec.Name)
	}
	assert.ElementsMatch(t, []string{"A.class", "B.class", "x/D.class"}, names)

	jar, err := store.Records(ctx, "/r/lib/app.jar")
	require.NoError(t, err)
	require.Len(t, jar, 1)
	assert.True(t, jar[0].Archive)
	assert.Equal(t, int64(len("member x/D.class")), jar[0].Size)

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Data["archive"] == "/r/lib/broken.ZIP" {
			warned = true
		}
	}
	assert.True(t, warned, "unreadable archive should be logged")
}

func TestBuilder_BuildIndex_SkipsUnchanged(t *testing.T) {
	fsys := testTree(t)
	builder, store, _ := newTestBuilder(t, fsys)
	ctx := context.Background()

	_, err := builder.BuildIndex(ctx, "/r")
	require.NoError(t, err)

	stats, err := builder.BuildIndex(ctx, "/r")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Unchanged)
	assert.Zero(t, stats.Records)

	later := time.Now().Add(time.Hour)
	require.NoError(t, fsys.Chtimes("/r/A.class", later, later))

	stats, err = builder.BuildIndex(ctx, "/r")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.FilesIndexed)
	assert.Equal(t, int64(2), stats.Unchanged)

	records, err := store.Records(ctx, "/r/A.class")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].ModTime.Equal(later))
}

func TestBuilder_BuildIndex_ManyRoots(t *testing.T) {
	fsys := testTree(t)
	builder, store, _ := newTestBuilder(t, fsys)
	ctx := context.Background()

	stats, err := builder.BuildIndex(ctx, "/r/pkg", "/r/lib", "/r/A.class", "/r/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Roots)
	assert.Equal(t, int64(3), stats.Records)

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Sources)
}

func TestBuilder_BuildIndex_Errors(t *testing.T) {
	fsys := testTree(t)
	builder, _, _ := newTestBuilder(t, fsys)

	_, err := builder.BuildIndex(context.Background(), "/r", "/missing")
	assert.ErrorIs(t, err, walker.ErrInvalidArgument)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = builder.BuildIndex(ctx, "/r")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuilder_Extensions(t *testing.T) {
	fsys := testTree(t)
	store := newTestStore(t)

	config := DefaultBuilderConfig()
	config.Fs = fsys
	config.Extensions = []string{"txt"}
	config.ArchiveExtensions = []string{"JAR"}
	config.SkipDirs = nil
	builder := NewBuilder(store, config)

	stats, err := builder.BuildIndex(context.Background(), "/r")
	require.NoError(t, err)
	// readme.txt and x/res.txt; .git is no longer skipped but holds no .txt
	assert.Equal(t, int64(2), stats.Records)
	assert.Zero(t, stats.DirsSkipped)
	assert.Zero(t, stats.Errors)
}

func TestBuilder_BuildIndex_OverlappingRoots(t *testing.T) {
	fsys := testTree(t)
	builder, store, _ := newTestBuilder(t, fsys)
	builder.config.Workers = 4
	ctx := context.Background()

	stats, err := builder.BuildIndex(ctx, "/r", "/r/pkg", "/r/", "/r/pkg/B.class", "/r/pkg")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Roots)

	records, err := store.Records(ctx, "")
	require.NoError(t, err)
	var sources []string
	for _, rec := range records {
		sources = append(sources, rec.Source)
	}
	assert.ElementsMatch(t, []string{"/r/A.class", "/r/pkg/B.class", "/r/lib/app.jar"}, sources)
}

func TestBuilder_Matching(t *testing.T) {
	fsys := testTree(t)
	require.NoError(t, fsys.MkdirAll("/r/odd.class", 0755))
	builder, _, _ := newTestBuilder(t, fsys)

	entry := func(path string) walker.Entry {
		info, err := fsys.Stat(path)
		require.NoError(t, err)
		return walker.Entry{Path: path, Info: info}
	}

	assert.True(t, builder.files(entry("/r/A.class")))
	assert.False(t, builder.files(entry("/r/readme.txt")))
	assert.False(t, builder.files(entry("/r/odd.class")), "directories are never indexed as files")
	assert.True(t, builder.archives(entry("/r/lib/broken.ZIP")))
	assert.False(t, builder.archives(entry("/r/A.class")))
	assert.True(t, builder.members(walker.Entry{Path: "x/y/D.CLASS"}))
	assert.False(t, builder.members(walker.Entry{Path: "META-INF/MANIFEST.MF"}))
}

func TestBuilder_Skipped(t *testing.T) {
	builder, _, _ := newTestBuilder(t, testTree(t))

	assert.False(t, builder.skipped("src/main/A.class"))
	assert.False(t, builder.skipped("."))
	assert.True(t, builder.skipped(".git"))
	assert.True(t, builder.skipped("web/node_modules/lib/x.class"))
	assert.False(t, builder.skipped("gitignore/.gitkeep"))
}
