package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamusis/lscope/internal/artifact"
	fixtures "github.com/kamusis/lscope/internal/testutil"
)

func TestParseIndices(t *testing.T) {
	tests := []struct {
		in   string
		want []int
	}{
		{"2,0,2", []int{2, 0, 2}},
		{" 2 0 2 ", []int{2, 0, 2}},
		{"[2, 0, 2]", []int{2, 0, 2}},
		{"[]", []int{}},
		{"", []int{}},
		{"-1", []int{-1}},
	}
	for _, tt := range tests {
		got, err := parseIndices(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := parseIndices("1,x")
	assert.Error(t, err)
	_, err = parseIndices("[1,")
	assert.Error(t, err)
}

func TestParseMetaValue(t *testing.T) {
	assert.Equal(t, "text", parseMetaValue("text"))
	assert.Equal(t, float64(3), parseMetaValue("3"))
	assert.Equal(t, true, parseMetaValue("true"))
	assert.Equal(t, []any{"a"}, parseMetaValue(`["a"]`))
}

func TestResolveClass(t *testing.T) {
	c, err := resolveClass("umaps")
	require.NoError(t, err)
	assert.Equal(t, artifact.UMAPs, c)

	_, err = resolveClass("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding")
}

func TestFirstNonEmptyAndPositive(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b"))
	assert.Equal(t, "", firstNonEmpty())
	assert.Equal(t, 4, firstPositive(0, -1, 4))
}

// runCLI executes the root command against a fresh home and data directory.
func runCLI(t *testing.T, dataDir string, args ...string) error {
	t.Helper()
	t.Cleanup(func() { flagDataDir, flagLogLevel = "", "" })
	rootCmd.SetArgs(append([]string{"--data-dir", dataDir, "--log-level", "error"}, args...))
	return rootCmd.Execute()
}

func withHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LSCOPE_DATA_DIR", "")
}

func TestCLI_TagsAdd(t *testing.T) {
	withHome(t)
	root := t.TempDir()
	fixtures.NewDataset(t, root, "d1", 5)

	require.NoError(t, runCLI(t, root, "tags", "add", "d1", "fav", "3"))
	require.NoError(t, runCLI(t, root, "tags", "add", "d1", "fav", "1"))

	b, err := os.ReadFile(filepath.Join(root, "d1", "tags", "fav.indices"))
	require.NoError(t, err)
	assert.Equal(t, "3\n1\n", string(b))

	require.NoError(t, runCLI(t, root, "tags", "remove", "d1", "fav", "3"))
	b, err = os.ReadFile(filepath.Join(root, "d1", "tags", "fav.indices"))
	require.NoError(t, err)
	assert.Equal(t, "1\n", string(b))
}

func TestCLI_ScopeSaveAllocates(t *testing.T) {
	withHome(t)
	root := t.TempDir()
	fixtures.NewDataset(t, root, "d1", 0)

	require.NoError(t, runCLI(t, root, "scope", "save", "d1", "--label", "first"))
	_, err := os.Stat(filepath.Join(root, "d1", "scopes", "scopes-001.json"))
	require.NoError(t, err)
}

func TestCLI_MissingDataDir(t *testing.T) {
	withHome(t)
	err := runCLI(t, filepath.Join(t.TempDir(), "absent"), "datasets")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available")
}

func TestCLI_UnknownDataset(t *testing.T) {
	withHome(t)
	err := runCLI(t, t.TempDir(), "rows", "nope", "0")
	assert.Error(t, err)
}

func TestCLI_ImportThenDatasets(t *testing.T) {
	withHome(t)
	root := t.TempDir()
	src := filepath.Join(t.TempDir(), "in.parquet")
	fixtures.WriteInput(t, src, 3)

	require.NoError(t, runCLI(t, root, "import", "d1", src, "--text-column", "text"))
	assert.FileExists(t, filepath.Join(root, "d1", "input.parquet"))
	assert.FileExists(t, filepath.Join(root, "d1", "meta.json"))
	require.NoError(t, runCLI(t, root, "datasets"))
	require.NoError(t, runCLI(t, root, "next", "d1", "umap"))
}

func TestCurrentBuild(t *testing.T) {
	b := currentBuild()
	assert.Equal(t, "dev", b.Version)
	assert.Equal(t, "n/a", b.Commit)
	assert.Contains(t, b.Platform, "/")
}

// captureStderr returns what fn writes to os.Stderr.
func captureStderr(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stderr
	os.Stderr = w
	defer func() { os.Stderr = orig }()

	done := make(chan []byte)
	go func() {
		b, _ := io.ReadAll(r)
		done <- b
	}()
	fn()
	require.NoError(t, w.Close())
	return string(<-done)
}

func TestRun_ReportsFailureOnce(t *testing.T) {
	withHome(t)
	root := t.TempDir()
	fixtures.NewDataset(t, root, "d1", 0)
	t.Cleanup(func() { flagDataDir, flagLogLevel = "", "" })
	rootCmd.SetArgs([]string{"--data-dir", root, "--log-level", "error", "tags", "add", "d1", ".hidden", "1"})

	var code int
	out := captureStderr(t, func() { code = run(context.Background()) })
	assert.Equal(t, 1, code)
	assert.Equal(t, 1, strings.Count(out, "invalid tag name"), out)
}

func TestCLI_ReadOnlyViews(t *testing.T) {
	withHome(t)
	root := t.TempDir()
	fixtures.NewDataset(t, root, "d1", 0)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "d1", "umaps"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "d1", "clusters"), 0o755))
	fixtures.WriteInput(t, filepath.Join(root, "d1", "umaps", "umap-001.parquet"), 2)
	fixtures.WriteInput(t, filepath.Join(root, "d1", "clusters", "cluster-001-labels-m.parquet"), 2)

	require.NoError(t, runCLI(t, root, "umap", "points", "d1", "umap-001"))
	require.NoError(t, runCLI(t, root, "clusters", "labels", "d1", "cluster-001", "--model", "m"))
	require.NoError(t, runCLI(t, root, "clusters", "labels-available", "d1", "cluster-001"))
	assert.Error(t, runCLI(t, root, "slides", "d1"))
}
