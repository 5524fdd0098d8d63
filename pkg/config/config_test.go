package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir runs the test from an empty working directory so no stray
// retrofit.yaml is picked up.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("data-dir", "", "")
	fs.String("deprecated-dir", "", "")
	fs.String("log-level", "", "")
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	inTempDir(t)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), *cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := inTempDir(t)
	file := filepath.Join(dir, "cfg.yaml")
	writeFile(t, file, `
data:
  primary: /from/file
  deprecated: /legacy/file
artifacts:
  model_a: a.json.gz
policy:
  cost_per_kwh: 100
  capex_per_sqm: 150000
log:
  level: warn
`)
	t.Setenv("RETROFIT_DATA_PRIMARY", "/from/env")
	t.Setenv("RETROFIT_POLICY_COST_PER_KWH", "145.5")

	fs := newFlags()
	require.NoError(t, fs.Parse([]string{"--data-dir", "/from/flag"}))

	cfg, err := Load(file, fs)
	require.NoError(t, err)

	assert.Equal(t, "/from/flag", cfg.Data.Primary, "flag beats env and file")
	assert.Equal(t, "/legacy/file", cfg.Data.Deprecated, "file beats default")
	assert.Equal(t, 145.5, cfg.Policy.CostPerKwh, "env beats file")
	assert.Equal(t, 150000.0, cfg.Policy.CapexPerSqm)
	assert.Equal(t, 15.0, cfg.Policy.RecommendMinPct, "default survives")
	assert.Equal(t, "a.json.gz", cfg.Artifacts.ModelA)
	assert.Equal(t, "model_B.pkl", cfg.Artifacts.ModelB)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_UnchangedFlagDoesNotOverride(t *testing.T) {
	dir := inTempDir(t)
	writeFile(t, filepath.Join(dir, "retrofit.yaml"), "data:\n  primary: /discovered\n")

	fs := newFlags()
	require.NoError(t, fs.Parse(nil))

	cfg, err := Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, "/discovered", cfg.Data.Primary)
}

func TestLoad_Errors(t *testing.T) {
	dir := inTempDir(t)

	_, err := Load(filepath.Join(dir, "missing.yaml"), nil)
	assert.True(t, errors.Is(err, ErrRead), err)

	bad := filepath.Join(dir, "bad.yaml")
	writeFile(t, bad, "policy: [1, 2")
	_, err = Load(bad, nil)
	assert.True(t, errors.Is(err, ErrRead), err)

	neg := filepath.Join(dir, "neg.yaml")
	writeFile(t, neg, "policy:\n  cost_per_kwh: -1\n")
	_, err = Load(neg, nil)
	assert.True(t, errors.Is(err, ErrInvalid), err)

	lvl := filepath.Join(dir, "lvl.yaml")
	writeFile(t, lvl, "log:\n  level: chatty\n")
	_, err = Load(lvl, nil)
	assert.True(t, errors.Is(err, ErrInvalid), err)

	typ := filepath.Join(dir, "typ.yaml")
	writeFile(t, typ, "policy:\n  cost_per_kwh: lots\n")
	_, err = Load(typ, nil)
	assert.True(t, errors.Is(err, ErrDecode), err)
}

func TestValidate(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	c.Data.Primary = "  "
	assert.ErrorIs(t, c.Validate(), ErrInvalid)

	c = Default()
	c.Log.Format = "xml"
	assert.ErrorIs(t, c.Validate(), ErrInvalid)

	c = Default()
	c.Policy.RecommendMaxPayback = 10
	assert.ErrorIs(t, c.Validate(), ErrInvalid)
}

func TestLog_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := Log{Level: "warn", Format: "json"}.NewLogger(&buf)
	log.Info("hidden")
	log.Warn("shown", "k", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	lvl, err := Log{}.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)

	lvl, err = Log{Level: "DEBUG"}.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}
