// Package source classifies the runtime source setting into a tagged variant:
// a local path, a bare version, a single artifact coordinate, or an ordered
// list of coordinates. Downstream code switches on Kind instead of
// re-inspecting the raw string.
package source
