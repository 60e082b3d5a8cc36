package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/arkilian/partprune/internal/errors"
	"github.com/arkilian/partprune/internal/query/planner"
)

const eventsDocument = `{
  "version": 1,
  "relations": [{
    "id": 10, "name": "events", "key_column": "key", "key_type": "int", "strategy": "range",
    "partitions": [
      {"id": 11, "name": "events_0", "min": "0", "max": "10"},
      {"id": 12, "name": "events_1", "min": "10", "max": "20"},
      {"id": 13, "name": "events_2", "min": "20", "max": "30"}
    ]
  }]
}`

func setupDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	storageDir := filepath.Join(dir, "storage")
	require.NoError(t, os.MkdirAll(storageDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(storageDir, "events.json"), []byte(eventsDocument), 0644))

	cfgPath := filepath.Join(dir, "partprune.yaml")
	cfg := fmt.Sprintf("data_dir: %s\nlog:\n  level: error\ngrpc:\n  enabled: false\n", dir)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0644))
	return cfgPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "partprune version dev")
}

func TestCatalogImportAndExplain(t *testing.T) {
	cfgPath := setupDataDir(t)

	out, err := run(t, "--config", cfgPath, "catalog", "import", "events.json")
	require.NoError(t, err)
	assert.Contains(t, out, "created events")

	out, err = run(t, "--config", cfgPath, "catalog", "import", "events.json")
	require.NoError(t, err)
	assert.Contains(t, out, "skipped events")

	out, err = run(t, "--config", cfgPath, "catalog", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "events_0,events_1,events_2")

	out, err = run(t, "--config", cfgPath, "explain", "--json", "SELECT * FROM events WHERE key >= 12 AND key < 15")
	require.NoError(t, err)
	var view planner.PlanView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	require.Len(t, view.Scans, 1)
	assert.Equal(t, "events_1", view.Scans[0].Name)
	assert.Equal(t, 1, view.Stats.Selected)
	assert.Equal(t, 3, view.Stats.Total)

	out, err = run(t, "--config", cfgPath, "explain", "--no-color", "SELECT * FROM events WHERE key = 25")
	require.NoError(t, err)
	assert.Contains(t, out, "Seq Scan on events_2")
}

func TestCatalogExportCompressed(t *testing.T) {
	cfgPath := setupDataDir(t)

	_, err := run(t, "--config", cfgPath, "catalog", "import", "events.json")
	require.NoError(t, err)

	out, err := run(t, "--config", cfgPath, "catalog", "export", "backup/events.json.sz")
	require.NoError(t, err)
	assert.Contains(t, out, "exported backup/events.json.sz")

	_, err = os.Stat(filepath.Join(filepath.Dir(cfgPath), "storage", "backup", "events.json.sz"))
	assert.NoError(t, err)
}

func TestCatalogExportConditional(t *testing.T) {
	cfgPath := setupDataDir(t)

	_, err := run(t, "--config", cfgPath, "catalog", "import", "events.json")
	require.NoError(t, err)

	out, err := run(t, "--config", cfgPath, "catalog", "export", "--create-only", "backup/catalog.json")
	require.NoError(t, err)
	m := regexp.MustCompile(`\(etag (\w+)\)`).FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	etag := m[1]

	_, err = run(t, "--config", cfgPath, "catalog", "export", "--create-only", "backup/catalog.json")
	assert.Equal(t, apperrors.CodePreconditionFailed, apperrors.GetCode(err))

	_, err = run(t, "--config", cfgPath, "catalog", "export", "--if-match", etag, "backup/catalog.json")
	require.NoError(t, err)

	_, err = run(t, "--config", cfgPath, "catalog", "export", "--if-match", "stale", "backup/catalog.json")
	assert.Equal(t, apperrors.CodePreconditionFailed, apperrors.GetCode(err))

	_, err = run(t, "--config", cfgPath, "catalog", "export", "--if-match", etag, "--create-only", "backup/catalog.json")
	assert.Error(t, err)
}

func TestCatalogImportPrefix(t *testing.T) {
	cfgPath := setupDataDir(t)
	moreDir := filepath.Join(filepath.Dir(cfgPath), "storage", "more")
	require.NoError(t, os.MkdirAll(moreDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(moreDir, "events.json"), []byte(eventsDocument), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(moreDir, "README.txt"), []byte("not a document"), 0644))

	_, err := run(t, "--config", cfgPath, "catalog", "import")
	assert.Equal(t, apperrors.CodeInvalidRequest, apperrors.GetCode(err))

	_, err = run(t, "--config", cfgPath, "catalog", "import", "--prefix", "empty")
	assert.Equal(t, apperrors.CodeObjectNotFound, apperrors.GetCode(err))

	out, err := run(t, "--config", cfgPath, "catalog", "import", "--prefix", "more")
	require.NoError(t, err)
	assert.Contains(t, out, "created events")
}

func TestRouteAndAttach(t *testing.T) {
	cfgPath := setupDataDir(t)

	_, err := run(t, "--config", cfgPath, "catalog", "import", "events.json")
	require.NoError(t, err)

	out, err := run(t, "--config", cfgPath, "route", "events", "15")
	require.NoError(t, err)
	assert.Contains(t, out, "events_1 (relation 12)")

	out, err = run(t, "--config", cfgPath, "route", "events", "35")
	require.NoError(t, err)
	assert.Contains(t, out, "no partition accepts 35")

	_, err = run(t, "--config", cfgPath, "route", "events", "abc")
	assert.Equal(t, apperrors.CodeInvalidRequest, apperrors.GetCode(err))

	_, err = run(t, "--config", cfgPath, "route", "missing", "1")
	assert.Equal(t, apperrors.CodeRelationNotFound, apperrors.GetCode(err))

	_, err = run(t, "--config", cfgPath, "catalog", "attach", "events", "14", "events_3")
	assert.Equal(t, apperrors.CodeInvalidBounds, apperrors.GetCode(err))

	out, err = run(t, "--config", cfgPath, "catalog", "attach", "--min", "30", "--max", "40", "events", "14", "events_3")
	require.NoError(t, err)
	assert.Contains(t, out, "attached events_3 to events [partition 3]")

	out, err = run(t, "--config", cfgPath, "route", "events", "35")
	require.NoError(t, err)
	assert.Contains(t, out, "events_3 (relation 14)")
}

func TestCatalogRegister(t *testing.T) {
	cfgPath := setupDataDir(t)

	out, err := run(t, "--config", cfgPath, "catalog", "register", "50", "audit")
	require.NoError(t, err)
	assert.Contains(t, out, "registered audit (relation 50)")

	_, err = run(t, "--config", cfgPath, "catalog", "register", "zero", "audit")
	assert.Equal(t, apperrors.CodeInvalidRequest, apperrors.GetCode(err))

	_, err = run(t, "--config", cfgPath, "route", "audit", "1")
	assert.Equal(t, apperrors.CodeInvalidRequest, apperrors.GetCode(err))
}

func TestExplainRejectsBadSQL(t *testing.T) {
	cfgPath := setupDataDir(t)
	_, err := run(t, "--config", cfgPath, "explain", "SELEC nothing")
	assert.Error(t, err)
}

func TestInvalidLogLevelFlag(t *testing.T) {
	cfgPath := setupDataDir(t)
	_, err := run(t, "--config", cfgPath, "--log-level", "loud", "catalog", "list")
	assert.Error(t, err)
}
