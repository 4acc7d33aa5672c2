package main

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/73ai/dirwalk/internal/index"
)

func indexFixture(t *testing.T) (root, indexPath string) {
	root = t.TempDir()
	writeTree(t, root, map[string]string{
		"A.class":         "class A",
		"pkg/B.class":     "class B",
		"pkg/notes.txt":   "notes",
		".git/HEAD.class": "ignored",
		"vendor/C.class":  "class C",
	})
	return root, filepath.Join(t.TempDir(), "index")
}

func TestIndexCommands(t *testing.T) {
	root, indexPath := indexFixture(t)

	out, err := execute(t, "", "index", "scan", "--index-path", indexPath, "--json",
		"--skip-dirs", ".git,vendor", root)
	require.NoError(t, err)

	var stats index.BuildStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, int64(1), stats.Roots)
	assert.Equal(t, int64(2), stats.FilesIndexed)
	assert.Equal(t, int64(2), stats.DirsSkipped)

	out, err = execute(t, "", "index", "list", "--index-path", indexPath, "--json")
	require.NoError(t, err)

	var records []index.Record
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	var sources []string
	for _, rec := range records {
		sources = append(sources, rec.Source)
	}
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "A.class"),
		filepath.Join(root, "pkg", "B.class"),
	}, sources)

	out, err = execute(t, "", "index", "list", "--index-path", indexPath, "--json", "--find", "B.class")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "B.class", records[0].Name)

	// a second scan reads nothing new
	out, err = execute(t, "", "index", "scan", "--index-path", indexPath, "--json",
		"--skip-dirs", ".git,vendor", root)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, int64(2), stats.Unchanged)
	assert.Zero(t, stats.FilesIndexed)

	out, err = execute(t, "n\n", "index", "clear", "--index-path", indexPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Operation cancelled.")

	out, err = execute(t, "", "index", "clear", "--index-path", indexPath, "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared 2 records from 2 sources")

	out, err = execute(t, "", "index", "status", "--index-path", indexPath, "--json")
	require.NoError(t, err)

	var status indexStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, indexPath, status.Path)
	assert.Equal(t, index.StoreStats{}, status.Store)
}

func TestIndexScan_Extensions(t *testing.T) {
	root, indexPath := indexFixture(t)

	out, err := execute(t, "", "index", "scan", "--index-path", indexPath, "--json",
		"-e", "txt", root)
	require.NoError(t, err)

	var stats index.BuildStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, int64(1), stats.FilesIndexed)
	assert.Equal(t, int64(1), stats.DirsSkipped)
}

func TestIndexScan_MissingPath(t *testing.T) {
	root, indexPath := indexFixture(t)

	_, err := execute(t, "", "index", "scan", "--index-path", indexPath, filepath.Join(root, "missing"))
	assert.Error(t, err)
}
