package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// EnvPrefix prefixes every environment override, e.g. RATEKEY_ENGINE_PATH.
const EnvPrefix = "RATEKEY"

// Engine contains configuration for the kinetics engine executable.
type Engine struct {
	Path           string `toml:"path" split_words:"true" validate:"required"`
	TimeoutSeconds int    `toml:"timeout_seconds" split_words:"true" validate:"gte=0"`
	ResultSuffix   string `toml:"result_suffix" split_words:"true" validate:"required"`
}

// Work contains configuration for per-file working directories.
type Work struct {
	Dir  string `toml:"dir" split_words:"true" validate:"required"`
	Keep bool   `toml:"keep" split_words:"true"`
}

// Pipeline contains configuration for the rate-constant workflow.
type Pipeline struct {
	Strategy            string  `toml:"strategy" split_words:"true" validate:"oneof=patch grouped"`
	RemoveNA            bool    `toml:"remove_na" split_words:"true"`
	DuplicatePolicy     string  `toml:"duplicate_policy" split_words:"true" validate:"oneof=require-unique first-match"`
	FileWorkers         int     `toml:"file_workers" split_words:"true" validate:"min=1,max=64"`
	PeptideWorkers      int     `toml:"peptide_workers" split_words:"true" validate:"min=1,max=256"`
	ToleranceMultiplier float64 `toml:"tolerance_multiplier" split_words:"true" validate:"gt=0"`
}

// Output contains configuration for result files.
type Output struct {
	Dir  string `toml:"dir" split_words:"true"` // Empty writes next to the input
	XLSX bool   `toml:"xlsx" split_words:"true"`
}

// Audit contains configuration for the run ledger.
type Audit struct {
	Enabled bool   `toml:"enabled" split_words:"true"`
	Path    string `toml:"path" split_words:"true" validate:"required_if=Enabled true"`
}

// Metrics contains configuration for the Prometheus textfile export.
type Metrics struct {
	Textfile string `toml:"textfile" split_words:"true"` // Empty disables the export
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level" split_words:"true" validate:"oneof=debug info warn warning error"`
	Format string `toml:"format" split_words:"true" validate:"oneof=console json"`
	File   string `toml:"file" split_words:"true"`
}

// Config encapsulates all configuration values for ratekey.
type Config struct {
	Engine   Engine   `toml:"engine"`
	Work     Work     `toml:"work"`
	Pipeline Pipeline `toml:"pipeline"`
	Output   Output   `toml:"output"`
	Audit    Audit    `toml:"audit"`
	Metrics  Metrics  `toml:"metrics"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/ratekey/config.toml")
}

// Load locates and parses a configuration file, applies RATEKEY_* environment
// overrides, and validates the result. It returns the config, the resolved
// path and whether a file existed there.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, "", false, fmt.Errorf("environment overrides: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("ratekey.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Work.Dir, err = expandPath(c.Work.Dir); err != nil {
		return fmt.Errorf("work.dir: %w", err)
	}
	if c.Output.Dir, err = expandPath(c.Output.Dir); err != nil {
		return fmt.Errorf("output.dir: %w", err)
	}
	if c.Audit.Path, err = expandPath(c.Audit.Path); err != nil {
		return fmt.Errorf("audit.path: %w", err)
	}
	if c.Metrics.Textfile, err = expandPath(c.Metrics.Textfile); err != nil {
		return fmt.Errorf("metrics.textfile: %w", err)
	}
	if c.Logging.File, err = expandPath(c.Logging.File); err != nil {
		return fmt.Errorf("logging.file: %w", err)
	}

	// A bare engine name is looked up on PATH when invoked
	c.Engine.Path = strings.TrimSpace(c.Engine.Path)
	if strings.ContainsAny(c.Engine.Path, `/\`) || strings.HasPrefix(c.Engine.Path, "~") {
		if c.Engine.Path, err = expandPath(c.Engine.Path); err != nil {
			return fmt.Errorf("engine.path: %w", err)
		}
	}

	c.Pipeline.Strategy = strings.ToLower(strings.TrimSpace(c.Pipeline.Strategy))
	c.Pipeline.DuplicatePolicy = strings.ToLower(strings.TrimSpace(c.Pipeline.DuplicatePolicy))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	return nil
}

// EnsureDirectories creates the work directory and the parents of configured files.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Work.Dir}
	if c.Output.Dir != "" {
		dirs = append(dirs, c.Output.Dir)
	}
	if c.Audit.Enabled {
		dirs = append(dirs, filepath.Dir(c.Audit.Path))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LogOutputs returns the log destinations for the logging package.
func (c *Config) LogOutputs() []string {
	outputs := []string{"stderr"}
	if c.Logging.File != "" {
		outputs = append(outputs, c.Logging.File)
	}
	return outputs
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
