// Package platform answers host capability questions consumed by settings
// resolution, such as whether the JVM may run with its own user interface.
package platform
