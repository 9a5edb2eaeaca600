package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/storyforge/internal/config"
	storyerrors "github.com/randalmurphal/storyforge/internal/errors"
	"github.com/randalmurphal/storyforge/internal/factory"
	"github.com/randalmurphal/storyforge/internal/model"
	"github.com/randalmurphal/storyforge/internal/storage"
)

// writeConfig writes an offline, sqlite-backed config under dir and returns its path.
func writeConfig(t *testing.T, dir, dbName string) string {
	t.Helper()
	path := filepath.Join(dir, dbName+".yaml")
	content := fmt.Sprintf(`offline: true
use_durable_store: true
database:
  driver: sqlite
  sqlite:
    path: %s
archive:
  driver: fs
  dir: %s
`, filepath.Join(dir, dbName+".db"), filepath.Join(dir, "archive"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// seed stores factories in the database named by the config at cfgPath.
func seed(t *testing.T, cfgPath string, factories ...*factory.ProjectFactory) {
	t.Helper()
	cfg, err := config.LoadFrom(cfgPath)
	require.NoError(t, err)
	store, err := storage.NewStore(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	for _, f := range factories {
		require.NoError(t, store.Save(context.Background(), f, f.Type()))
	}
}

func ferryFactory() *factory.ProjectFactory {
	f := factory.NewEmpty(model.Project{
		ID:     "p1",
		Title:  "Night Ferry",
		Type:   model.ProjectTypeFilm,
		Status: model.StatusActive,
	})
	f.Characters = []model.Character{{ID: "c1", ProjectID: "p1", Name: "Ines"}}
	f.Stories = []model.Story{{ID: "s1", ProjectID: "p1", Title: "Crossing", CharacterIDs: []string{"c1"}}}
	return f
}

func seriesFactory() *factory.ProjectFactory {
	return factory.NewSample(model.Project{
		ID:     "p2",
		Title:  "Harbor Lights",
		Type:   model.ProjectTypeSeries,
		Status: model.StatusPlanning,
	}, "bundled sample")
}

// run executes the root command with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestListCmd(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "main")
	seed(t, cfg, ferryFactory(), seriesFactory())

	tests := []struct {
		name    string
		args    []string
		want    []string
		notWant []string
	}{
		{name: "all", args: nil, want: []string{"Night Ferry", "Harbor Lights"}},
		{name: "by type", args: []string{"--type", "film"}, want: []string{"Night Ferry"}, notWant: []string{"Harbor Lights"}},
		{name: "by status", args: []string{"--status", "planning"}, want: []string{"Harbor Lights"}, notWant: []string{"Night Ferry"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, append([]string{"--config", cfg, "list"}, tt.args...)...)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, out, w)
			}
		})
	}
}

func TestListCmd_Empty(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), "main")

	out, err := run(t, "--config", cfg, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No projects found")
}

func TestShowCmd_JSON(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), "main")
	seed(t, cfg, ferryFactory())

	out, err := run(t, "--config", cfg, "--json", "show", "p1")
	require.NoError(t, err)

	var view projectView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "Night Ferry", view.Project.Title)
	assert.Equal(t, 1, view.Characters)
	assert.Equal(t, 1, view.Stories)
	assert.Equal(t, 0, view.Scripts)
}

func TestShowCmd_NotFound(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), "main")

	_, err := run(t, "--config", cfg, "show", "missing")
	require.Error(t, err)
	assert.True(t, storyerrors.HasCode(err, storyerrors.CodeProjectNotFound))

	var buf bytes.Buffer
	PrintError(&buf, err, true)
	assert.Contains(t, buf.String(), "Code: PROJECT_NOT_FOUND")
}

func TestSearchCmd(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), "main")
	seed(t, cfg, ferryFactory(), seriesFactory())

	out, err := run(t, "--config", cfg, "search", "ines")
	require.NoError(t, err)
	assert.Contains(t, out, "character")
	assert.Contains(t, out, "c1")

	out, err = run(t, "--config", cfg, "search", "nothing-matches-this")
	require.NoError(t, err)
	assert.Contains(t, out, "No matches")
}

func TestSyncCmd_Offline(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), "main")
	seed(t, cfg, ferryFactory())

	out, err := run(t, "--config", cfg, "--json", "sync")
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, true, report["offline"])
	assert.EqualValues(t, 1, report["stored"])
}

func TestExportImportCmd_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := writeConfig(t, dir, "src")
	dst := writeConfig(t, dir, "dst")
	seed(t, src, ferryFactory(), seriesFactory())

	out, err := run(t, "--config", src, "export")
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 2 projects")
	assert.FileExists(t, filepath.Join(dir, "archive", "projects", "p1", "basic.json"))

	out, err = run(t, "--config", dst, "--json", "import", "--match", "projects/p1/basic.json")
	require.NoError(t, err)
	var view reportView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, []string{"p1"}, view.Done)

	out, err = run(t, "--config", dst, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Night Ferry")
	assert.NotContains(t, out, "Harbor Lights")
}

func TestExportCmd_MissingProject(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "main")
	seed(t, cfg, ferryFactory())

	out, err := run(t, "--config", cfg, "export", "p1", "ghost", "--dir", filepath.Join(dir, "other"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 projects failed")
	assert.Contains(t, out, "ghost")
	assert.FileExists(t, filepath.Join(dir, "other", "projects", "p1", "basic.json"))
}

func TestConfigCmd(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), "main")

	t.Run("get", func(t *testing.T) {
		out, err := run(t, "--config", cfg, "config", "get", "archive.driver")
		require.NoError(t, err)
		assert.Equal(t, "fs\n", out)
	})

	t.Run("get unknown key", func(t *testing.T) {
		_, err := run(t, "--config", cfg, "config", "get", "nope.nothing")
		require.Error(t, err)
	})

	t.Run("show yaml", func(t *testing.T) {
		out, err := run(t, "--config", cfg, "config", "show")
		require.NoError(t, err)
		assert.Contains(t, out, "use_durable_store: true")
		assert.Contains(t, out, "base_url:")
	})

	t.Run("show sources", func(t *testing.T) {
		t.Setenv("STORYFORGE_PORT", "9090")
		out, err := run(t, "--config", cfg, "config", "show", "--source")
		require.NoError(t, err)
		assert.Regexp(t, `offline\s+true\s+file: `, out)
		assert.Regexp(t, `server\.port\s+9090\s+env`, out)
		assert.Regexp(t, `remote\.retry_max\s+3\s+default`, out)
	})

	t.Run("offline flag", func(t *testing.T) {
		other := filepath.Join(t.TempDir(), "online.yaml")
		require.NoError(t, os.WriteFile(other, []byte("offline: false\n"), 0o644))
		out, err := run(t, "--config", other, "--offline", "config", "show", "--source")
		require.NoError(t, err)
		assert.Regexp(t, `offline\s+true\s+flag`, out)
	})
}

func TestConfigInitCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	_, err := run(t, "--config", path, "config", "init")
	require.NoError(t, err)
	loaded, err := config.LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Server, loaded.Server)

	_, err = run(t, "--config", path, "config", "init")
	require.Error(t, err)

	_, err = run(t, "--config", path, "config", "init", "--force")
	require.NoError(t, err)
}
