// Package app provides the application service layer.
//
// Registry owns the per-streamer runtime (bottle store + live manager). Service orchestrates use cases:
// profile CRUD, overlay token checks, listen start/stop, bottle use, token rotation.
// Sits between HTTP handlers and domain repositories. Depends on domain interfaces, not concrete implementations.
package app
