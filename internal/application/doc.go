// Package application provides application initialization and dependency wiring.
// It preloads configured sprite sheets, builds the packer, handlers and router,
// and constructs the HTTP server, keeping the main package focused on CLI
// parsing and orchestration.
package application
