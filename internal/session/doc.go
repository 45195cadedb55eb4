// Package session implements the runtime initializer: an explicit session
// object that turns resolved settings into exactly one bridge startup and
// tracks the Uninitialized → Initializing → Ready/Failed lifecycle.
package session
