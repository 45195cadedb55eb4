// Package application provides application initialization and dependency wiring.
// It connects settings storage, the runtime session, the API handlers and
// router, and the HTTP server, keeping the main package focused on CLI
// parsing and orchestration.
package application
