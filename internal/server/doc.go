// Package server exposes the audio WebSocket, the completion API and the
// monitoring endpoints over gin. Bearer-token checks are applied when
// server.require_auth is set.
package server
