package walker

import (
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInfo struct {
	name string
	dir  bool
}

func (f fakeInfo) Name() string       { return f.name }
func (f fakeInfo) Size() int64        { return 0 }
func (f fakeInfo) ModTime() time.Time { return time.Time{} }
func (f fakeInfo) IsDir() bool        { return f.dir }
func (f fakeInfo) Sys() any           { return nil }

func (f fakeInfo) Mode() fs.FileMode {
	if f.dir {
		return fs.ModeDir | 0755
	}
	return 0644
}

func names(infos []fs.FileInfo) []string {
	out := make([]string, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.Name())
	}
	return out
}

func TestParseOrder(t *testing.T) {
	for _, o := range Orders() {
		got, err := ParseOrder(o.String())
		require.NoError(t, err)
		assert.Equal(t, o, got)
		assert.True(t, IsValidOrder(o.String()))
	}

	got, err := ParseOrder("")
	require.NoError(t, err)
	assert.False(t, got.IsSet())
	assert.True(t, IsValidOrder(""))

	_, err = ParseOrder("files_first")
	assert.ErrorIs(t, err, ErrUnknownOrder)
	assert.False(t, IsValidOrder("files_first"))

	var o Order
	require.NoError(t, o.UnmarshalText([]byte("DIRS_FIRST")))
	assert.Equal(t, DirsFirst, o)
	assert.Error(t, o.UnmarshalText([]byte("RANDOM")))
}

func TestArrange(t *testing.T) {
	children := []fs.FileInfo{
		fakeInfo{name: "z.txt"},
		fakeInfo{name: "m", dir: true},
		fakeInfo{name: "a.txt"},
		fakeInfo{name: "b", dir: true},
	}

	tests := []struct {
		order  Order
		sorted bool
		want   []string
	}{
		{Natural, false, []string{"z.txt", "m", "a.txt", "b"}},
		{Natural, true, []string{"a.txt", "b", "m", "z.txt"}},
		{FilesFirst, false, []string{"z.txt", "a.txt", "m", "b"}},
		{FilesFirst, true, []string{"a.txt", "z.txt", "b", "m"}},
		{DirsFirst, false, []string{"m", "b", "z.txt", "a.txt"}},
		{DirsFirst, true, []string{"b", "m", "a.txt", "z.txt"}},
	}

	for _, tt := range tests {
		got := arrange(children, tt.order, tt.sorted)
		assert.Equal(t, tt.want, names(got), "%s sorted=%v", tt.order, tt.sorted)
	}

	// input is left untouched
	assert.Equal(t, []string{"z.txt", "m", "a.txt", "b"}, names(children))
}

func TestArrange_PartitionKeepsRelativeOrder(t *testing.T) {
	children := []fs.FileInfo{
		fakeInfo{name: "3"},
		fakeInfo{name: "c", dir: true},
		fakeInfo{name: "1"},
		fakeInfo{name: "a", dir: true},
		fakeInfo{name: "2"},
	}

	filesFirst := names(arrange(children, FilesFirst, false))
	dirsFirst := names(arrange(children, DirsFirst, false))

	assert.Equal(t, []string{"3", "1", "2", "c", "a"}, filesFirst)
	assert.Equal(t, []string{"c", "a", "3", "1", "2"}, dirsFirst)

	// arranging twice changes nothing
	again := arrange(arrange(children, FilesFirst, false), FilesFirst, false)
	assert.Equal(t, filesFirst, names(again))
}
