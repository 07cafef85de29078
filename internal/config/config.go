// Package config loads extsort settings from JSONC files and command-line
// overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/extsort/pkg/extsort"
)

// Error variables for config loading.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrInvalidValue       = errors.New("invalid config value")
)

// FileName is the project config file looked up in the working directory.
const FileName = ".extsort.json"

// DefaultLockTimeout is how long a command waits for another extsort
// process working on the same file.
const DefaultLockTimeout = 5 * time.Second

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	RunFile      string `json:"run_file"`
	MemoryBlocks int    `json:"memory_blocks"`
	MergeMode    string `json:"merge_mode"`
	KeepRunFile  bool   `json:"keep_run_file"`
	PrintAll     bool   `json:"print_all"`
	PerLine      int    `json:"per_line"`
	LockTimeout  string `json:"lock_timeout"`
	Backup       bool   `json:"backup"`
	BackupDir    string `json:"backup_dir"`

	// Resolved values (computed, not serialized)
	EffectiveCwd string            `json:"-"`
	Merge        extsort.MergeMode `json:"-"`
	LockWait     time.Duration     `json:"-"`

	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project config if loaded, empty otherwise
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		MemoryBlocks: extsort.DefaultMemoryBlocks,
		MergeMode:    extsort.MergeBuffered.String(),
		PerLine:      extsort.DefaultPerLine,
		LockTimeout:  DefaultLockTimeout.String(),
	}
}

// fileConfig is the on-disk form. Pointers distinguish "absent" from an
// explicit zero, so a project file can switch off what the global file
// switched on.
type fileConfig struct {
	RunFile      *string `json:"run_file"`
	MemoryBlocks *int    `json:"memory_blocks"`
	MergeMode    *string `json:"merge_mode"`
	KeepRunFile  *bool   `json:"keep_run_file"`
	PrintAll     *bool   `json:"print_all"`
	PerLine      *int    `json:"per_line"`
	LockTimeout  *string `json:"lock_timeout"`
	Backup       *bool   `json:"backup"`
	BackupDir    *string `json:"backup_dir"`
}

// GlobalPath returns the path to the global config file.
// Uses $XDG_CONFIG_HOME/extsort/config.json if set, otherwise
// ~/.config/extsort/config.json. Returns "" if neither variable is set.
func GlobalPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "extsort", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "extsort", "config.json")
	}

	return ""
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	Env             map[string]string // environment variables
}

// Load loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config
// 3. Project config file in the working directory (.extsort.json, if exists)
// 4. Explicit config file via ConfigPath (replaces 3)
//
// Command flags are applied by the caller on top of the result.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := Default()

	if globalPath := GlobalPath(input.Env); globalPath != "" {
		fc, loaded, err := loadFile(globalPath, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg = merge(cfg, fc)
			cfg.Sources.Global = globalPath
		}
	}

	projectPath, mustExist := filepath.Join(workDir, FileName), false

	if input.ConfigPath != "" {
		projectPath, mustExist = input.ConfigPath, true
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}

		if _, err := os.Stat(projectPath); err != nil {
			return Config{}, fmt.Errorf("%w: %s", ErrConfigFileNotFound, input.ConfigPath)
		}
	}

	fc, loaded, err := loadFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg = merge(cfg, fc)
		cfg.Sources.Project = projectPath
	}

	cfg.EffectiveCwd = workDir

	if err := cfg.Resolve(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Resolve validates the serialized fields and fills the resolved ones.
// Callers that change fields after Load must call it again.
func (c *Config) Resolve() error {
	if c.MemoryBlocks <= 0 {
		return fmt.Errorf("%w: memory_blocks must be positive, got %d", ErrInvalidValue, c.MemoryBlocks)
	}

	if c.PerLine <= 0 {
		return fmt.Errorf("%w: per_line must be positive, got %d", ErrInvalidValue, c.PerLine)
	}

	mode, err := extsort.ParseMergeMode(c.MergeMode)
	if err != nil {
		return fmt.Errorf("%w: merge_mode: %w", ErrInvalidValue, err)
	}

	wait, err := time.ParseDuration(c.LockTimeout)
	if err != nil || wait < 0 {
		return fmt.Errorf("%w: lock_timeout %q must be a non-negative duration", ErrInvalidValue, c.LockTimeout)
	}

	c.Merge = mode
	c.LockWait = wait

	return nil
}

// Abs resolves path against the effective working directory.
func (c *Config) Abs(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(c.EffectiveCwd, path)
}

// Format renders the serialized fields as indented JSON.
func Format(cfg Config) (string, error) {
	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("formatting config: %w", err)
	}

	return string(out), nil
}

// loadFile loads a config file. If mustExist is false, a missing file is
// not an error and reports loaded=false.
func loadFile(path string, mustExist bool) (fileConfig, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from flags or env
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return fileConfig{}, false, nil
		}

		return fileConfig{}, false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
	}

	fc, err := parse(data)
	if err != nil {
		return fileConfig{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return fc, true, nil
}

func parse(data []byte) (fileConfig, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var fc fileConfig

	if err := json.Unmarshal(standardized, &fc); err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return fc, nil
}

func merge(base Config, overlay fileConfig) Config {
	setIf(&base.RunFile, overlay.RunFile)
	setIf(&base.MemoryBlocks, overlay.MemoryBlocks)
	setIf(&base.MergeMode, overlay.MergeMode)
	setIf(&base.KeepRunFile, overlay.KeepRunFile)
	setIf(&base.PrintAll, overlay.PrintAll)
	setIf(&base.PerLine, overlay.PerLine)
	setIf(&base.LockTimeout, overlay.LockTimeout)
	setIf(&base.Backup, overlay.Backup)
	setIf(&base.BackupDir, overlay.BackupDir)

	return base
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
