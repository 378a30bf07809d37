package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novacsv/internal/rowstore"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "novacsv", cfg.AppName)
	assert.Equal(t, "./data", cfg.Storage.Workdir)
	assert.Equal(t, 256, cfg.Index.PageSize)
	assert.Equal(t, 64, cfg.Index.MaxOpen)
	assert.Equal(t, 1024, cfg.Index.CachePages)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)

	opts := cfg.EngineOptions()
	assert.Equal(t, rowstore.FormatCSV, opts.RowFormat)
	assert.Equal(t, 256, opts.PageSize)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "novacsv.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app_name: gtfs
storage:
  workdir: /srv/gtfs
  row_format: binary
index:
  page_size: 32
server:
  addr: 127.0.0.1:9000
  debug: true
log:
  format: json
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("NOVACSV_INDEX_MAX_OPEN=8\n"), 0o644))
	t.Setenv("NOVACSV_LOG_LEVEL", "debug")
	t.Setenv("NOVACSV_INDEX_MAX_OPEN", "")
	os.Unsetenv("NOVACSV_INDEX_MAX_OPEN")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "gtfs", cfg.AppName)
	assert.Equal(t, "/srv/gtfs", cfg.Storage.Workdir)
	assert.Equal(t, 32, cfg.Index.PageSize)
	assert.Equal(t, 8, cfg.Index.MaxOpen)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.True(t, cfg.Server.Debug)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, rowstore.FormatBinary, cfg.EngineOptions().RowFormat)
}

func TestLoadConfigInvalid(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("NOVACSV_INDEX_PAGE_SIZE", "1")
	_, err := LoadConfig("")
	require.ErrorContains(t, err, "page_size")

	t.Setenv("NOVACSV_INDEX_PAGE_SIZE", "16")
	t.Setenv("NOVACSV_STORAGE_ROW_FORMAT", "xml")
	_, err = LoadConfig("")
	require.ErrorIs(t, err, rowstore.ErrUnknownFormat)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
