// Package storage persists the user's settings document, in memory or in the
// per-user YAML settings file.
package storage
