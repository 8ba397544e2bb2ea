package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ChrisMcGann/RateKey/pkg/engine"
)

const (
	defaultEngineBinary   = "SRM_Rate"
	defaultEngineTimeout  = 1800
	defaultFileWorkers    = 2
	defaultPeptideWorkers = 4
	defaultTolerance      = 2.0
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Engine: Engine{
			Path:           defaultEngineBinary,
			TimeoutSeconds: defaultEngineTimeout,
			ResultSuffix:   engine.DefaultResultSuffix,
		},
		Work: Work{
			Dir: filepath.Join(dataHome(), "work"),
		},
		Pipeline: Pipeline{
			Strategy:            "patch",
			RemoveNA:            true,
			DuplicatePolicy:     "require-unique",
			FileWorkers:         defaultFileWorkers,
			PeptideWorkers:      defaultPeptideWorkers,
			ToleranceMultiplier: defaultTolerance,
		},
		Audit: Audit{
			Enabled: true,
			Path:    filepath.Join(dataHome(), "audit.db"),
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

func dataHome() string {
	if base, ok := os.LookupEnv("XDG_DATA_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "ratekey")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.local/share/ratekey"
	}
	return filepath.Join(home, ".local", "share", "ratekey")
}
