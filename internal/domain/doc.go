// Package domain defines the core domain types and interfaces.
//
// Files are split by concept (errors.go, streamer.go, bottle.go, webcast.go, message.go).
// Interfaces live here so adapters and the app layer can depend on them without importing each other.
package domain
