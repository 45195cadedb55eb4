// Package bridge defines the contract with the external component that hosts
// the JVM toolkit: startup parameters derived from resolved settings, the
// Bridge and Handle interfaces, a process-launching implementation, and the
// minimum component version check applied after startup.
package bridge
