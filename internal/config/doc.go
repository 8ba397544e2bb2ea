// Package config loads ratekey configuration.
//
// Values come from Default, then the TOML file (--config, then
// ~/.config/ratekey/config.toml, then ./ratekey.toml), then RATEKEY_*
// environment variables such as RATEKEY_ENGINE_PATH or
// RATEKEY_PIPELINE_STRATEGY. Paths are tilde-expanded and made absolute
// before validation.
package config
