// Package broadcast implements the overlay WebSocket hub using the actor pattern.
//
// The Hub keeps one subscriber set per streamer and fans out every published message to it.
// Uses single goroutine + command channel (no mutexes). Per-connection write goroutines handle slow clients gracefully.
package broadcast
