package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return describe(verrs)
		}
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// describe turns validator errors into toml-keyed messages.
func describe(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := tomlKey(fe.Namespace())
		switch fe.Tag() {
		case "required", "required_if":
			msgs = append(msgs, fmt.Sprintf("%s is required", key))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s], got %v", key, fe.Param(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s, got %v", key, fe.Tag(), fe.Param(), fe.Value()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

var tomlKeys = map[string]string{
	"Engine.Path":                  "engine.path",
	"Engine.TimeoutSeconds":        "engine.timeout_seconds",
	"Engine.ResultSuffix":          "engine.result_suffix",
	"Work.Dir":                     "work.dir",
	"Pipeline.Strategy":            "pipeline.strategy",
	"Pipeline.DuplicatePolicy":     "pipeline.duplicate_policy",
	"Pipeline.FileWorkers":         "pipeline.file_workers",
	"Pipeline.PeptideWorkers":      "pipeline.peptide_workers",
	"Pipeline.ToleranceMultiplier": "pipeline.tolerance_multiplier",
	"Audit.Path":                   "audit.path",
	"Logging.Level":                "logging.level",
	"Logging.Format":               "logging.format",
}

func tomlKey(namespace string) string {
	namespace = strings.TrimPrefix(namespace, "Config.")
	if key, ok := tomlKeys[namespace]; ok {
		return key
	}
	return strings.ToLower(namespace)
}
