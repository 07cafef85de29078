package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/extsort/internal/config"
	"github.com/calvinalkan/extsort/pkg/extsort"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func Test_Load_Returns_Defaults_When_No_Files_Exist(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cfg, err := config.Load(config.LoadInput{WorkDirOverride: dir, Env: map[string]string{}})
	require.NoError(t, err)

	assert.Equal(t, extsort.DefaultMemoryBlocks, cfg.MemoryBlocks)
	assert.Equal(t, extsort.MergeBuffered, cfg.Merge)
	assert.Equal(t, extsort.DefaultPerLine, cfg.PerLine)
	assert.Equal(t, config.DefaultLockTimeout, cfg.LockWait)
	assert.Equal(t, dir, cfg.EffectiveCwd)
	assert.Equal(t, config.Sources{}, cfg.Sources)
}

func Test_Load_Project_File_Overrides_Global_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	xdg := t.TempDir()

	globalPath := filepath.Join(xdg, "extsort", "config.json")
	writeFile(t, globalPath, `{"memory_blocks": 2, "keep_run_file": true, "merge_mode": "shared"}`)
	writeFile(t, filepath.Join(dir, config.FileName), `{
		// project settings
		"memory_blocks": 16,
		"keep_run_file": false,
		"lock_timeout": "250ms",
	}`)

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: dir,
		Env:             map[string]string{"XDG_CONFIG_HOME": xdg},
	})
	require.NoError(t, err)

	if got, want := cfg.MemoryBlocks, 16; got != want {
		t.Fatalf("memory_blocks=%d, want=%d", got, want)
	}

	assert.False(t, cfg.KeepRunFile)
	assert.Equal(t, extsort.MergeShared, cfg.Merge)
	assert.Equal(t, 250*time.Millisecond, cfg.LockWait)
	assert.Equal(t, globalPath, cfg.Sources.Global)
	assert.Equal(t, filepath.Join(dir, config.FileName), cfg.Sources.Project)
}

func Test_Load_Uses_Home_Config_When_XDG_Is_Unset(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	writeFile(t, filepath.Join(home, ".config", "extsort", "config.json"), `{"per_line": 3}`)

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: t.TempDir(),
		Env:             map[string]string{"HOME": home},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.PerLine)
}

func Test_Load_Explicit_Config_Replaces_Project_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.FileName), `{"run_file": "project.bin"}`)
	writeFile(t, filepath.Join(dir, "custom.json"), `{"backup": true}`)

	cfg, err := config.Load(config.LoadInput{WorkDirOverride: dir, ConfigPath: "custom.json"})
	require.NoError(t, err)

	assert.True(t, cfg.Backup)
	assert.Empty(t, cfg.RunFile)
	assert.Equal(t, filepath.Join(dir, "custom.json"), cfg.Sources.Project)
}

func Test_Load_Returns_Error_When_Explicit_Config_Is_Missing(t *testing.T) {
	t.Parallel()

	_, err := config.Load(config.LoadInput{WorkDirOverride: t.TempDir(), ConfigPath: "nope.json"})
	require.ErrorIs(t, err, config.ErrConfigFileNotFound)
}

func Test_Load_Returns_Error_When_File_Is_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"not json", `{memory_blocks: }`, config.ErrConfigInvalid},
		{"wrong type", `{"memory_blocks": "many"}`, config.ErrConfigInvalid},
		{"zero blocks", `{"memory_blocks": 0}`, config.ErrInvalidValue},
		{"bad merge mode", `{"merge_mode": "zip"}`, config.ErrInvalidValue},
		{"bad timeout", `{"lock_timeout": "soon"}`, config.ErrInvalidValue},
		{"negative timeout", `{"lock_timeout": "-1s"}`, config.ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, config.FileName), tt.content)

			_, err := config.Load(config.LoadInput{WorkDirOverride: dir})
			if !assert.ErrorIs(t, err, tt.wantErr) {
				t.Logf("err=%v", err)
			}
		})
	}
}

func Test_Abs_Resolves_Against_Effective_Cwd(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.EffectiveCwd = "/work"

	assert.Equal(t, "/work/data.bin", cfg.Abs("data.bin"))
	assert.Equal(t, "/tmp/x", cfg.Abs("/tmp/x"))
	assert.Empty(t, cfg.Abs(""))
}

func Test_Format_Omits_Resolved_Fields(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.EffectiveCwd = "/somewhere"

	out, err := config.Format(cfg)
	require.NoError(t, err)

	assert.Contains(t, out, `"memory_blocks": 8`)
	assert.Contains(t, out, `"merge_mode": "buffered"`)
	assert.NotContains(t, out, "somewhere")
}
