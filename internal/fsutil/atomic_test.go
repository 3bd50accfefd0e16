package fsutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic_ReplacesContent(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.indices")
	require.NoError(t, os.WriteFile(p, []byte("old\n"), 0o644))

	require.NoError(t, WriteFileAtomic(p, []byte("7\n3\n"), 0o644))

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "7\n3\n", string(b))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestWriteAtomic_FailedWriteKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "meta.json")
	require.NoError(t, os.WriteFile(p, []byte("{}"), 0o644))

	boom := errors.New("boom")
	err := WriteAtomic(p, 0o644, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(b))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
