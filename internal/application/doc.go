// Package application provides application initialization and dependency wiring.
// It builds the named-config registry from the loaded configuration and creates
// the handlers, routers and HTTP server, leaving the main package to CLI parsing
// and orchestration.
package application
