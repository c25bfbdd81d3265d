// Package server manages http.Server lifecycle: background serving,
// graceful shutdown, and signal handling.
package server
