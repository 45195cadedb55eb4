// Package config loads plugin settings from multiple sources (explicit caller
// values, a YAML or TOML settings file, NAPARI_IMAGEJ_* environment variables)
// with precedence: explicit values > settings file > environment. Defaults,
// runtime source classification and the platform override of the execution
// mode are applied by Resolve, which returns an immutable Resolved record.
package config
