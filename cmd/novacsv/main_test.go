package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novacsv/internal/codec"
	"github.com/tuannm99/novacsv/internal/engine"
)

func TestRunImportBuildQuery(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := t.TempDir()
	src := filepath.Join(t.TempDir(), "agencies.csv")
	require.NoError(t, os.WriteFile(src, []byte("agency_id,agency_name,fleet\n1,North,12\n2,South,7\n3,East,12\n"), 0o644))

	var out bytes.Buffer
	require.NoError(t, run([]string{"-w", dir, "import", "--key", "agency_id", "--types", "INT16,STRING,DECIMAL", "agencies", src}, &out))
	assert.Equal(t, "imported 3 rows into agencies\n", out.String())

	require.NoError(t, run([]string{"-w", dir, "build", "agencies", "fleet"}, &out))

	out.Reset()
	require.NoError(t, run([]string{"-w", dir, "query", "SELECT agency_name FROM agencies WHERE fleet = 12"}, &out))
	var res struct {
		Rows [][]string `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, [][]string{{"North"}, {"East"}}, res.Rows)

	out.Reset()
	require.NoError(t, run([]string{"-w", dir, "describe", "agencies"}, &out))
	var meta engine.TableMeta
	require.NoError(t, json.Unmarshal(out.Bytes(), &meta))
	assert.Equal(t, codec.KindInt16, meta.Schema.Cols[0].Type)
	assert.True(t, meta.Schema.Cols[2].IsIndexed)
	assert.False(t, meta.Schema.Cols[2].IsUnique)

	out.Reset()
	require.NoError(t, run([]string{"-w", dir, "tables"}, &out))
	assert.Equal(t, "agencies\n", out.String())

	require.NoError(t, run([]string{"-w", dir, "drop-index", "agencies", "fleet"}, &out))
	require.NoError(t, run([]string{"-w", dir, "drop", "agencies"}, &out))
}

func TestRunErrors(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := t.TempDir()
	var out bytes.Buffer

	require.Error(t, run([]string{"-w", dir}, &out))
	require.ErrorContains(t, run([]string{"-w", dir, "frobnicate"}, &out), "unknown command")
	require.ErrorIs(t, run([]string{"-w", dir, "describe", "nope"}, &out), engine.ErrTableNotFound)
	require.Error(t, run([]string{"-w", dir, "import", "only-one-arg"}, &out))

	src := filepath.Join(t.TempDir(), "x.csv")
	require.NoError(t, os.WriteFile(src, []byte("a,b\n1,2\n"), 0o644))
	require.ErrorIs(t, run([]string{"-w", dir, "import", "--types", "INT32,UUID", "x", src}, &out), codec.ErrUnknownKind)
}
