package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withHome points HOME at a fresh temp dir and returns ~/.lscope inside it.
func withHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".lscope")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return dir
}

func TestLoadDotEnv_NotExist(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	m, err := LoadDotEnv()
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestLoadDotEnv_ParsesKeyValue(t *testing.T) {
	dir := withHome(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("# comment\nA=1\nB=two\nbogus\n=x\n"), 0o600))

	m, err := LoadDotEnv()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1", "B": "two"}, m)
}

func TestGetConfigValue_EnvOverridesDotEnv(t *testing.T) {
	dir := withHome(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("K=fromdotenv\n"), 0o600))
	t.Setenv("K", "fromenv")

	v, err := GetConfigValue("K")
	require.NoError(t, err)
	assert.Equal(t, "fromenv", v)
}

func TestEnsureDotEnvTemplate_DoesNotOverwrite(t *testing.T) {
	dir := withHome(t)
	p := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(p, []byte("LSCOPE_ENCODER_BASE_URL=keep\n"), 0o600))

	require.NoError(t, EnsureDotEnvTemplate())

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "LSCOPE_ENCODER_BASE_URL=keep\n", string(b))
}

func TestEnsureDotEnvTemplate_CreatesWhenMissing(t *testing.T) {
	dir := withHome(t)

	require.NoError(t, EnsureDotEnvTemplate())

	b, err := os.ReadFile(filepath.Join(dir, ".env"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "LSCOPE_ENCODER_BASE_URL=\n")
}
