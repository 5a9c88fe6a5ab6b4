// Package config loads the tool configuration from multiple sources (YAML files,
// environment variables, CLI flags) with precedence: CLI flags > YAML config >
// Environment variables > Defaults. Besides HTTP settings it carries the
// machine-specific inputs of experiment resolution: CUDA mode, default system,
// extra directory layouts and extra named configurations.
package config
