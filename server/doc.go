// Package server exposes the coordination operations over HTTP. Every
// operation is a named tool behind POST /v1/tools/{tool} with a JSON body;
// accepted messages additionally stream to recipients over a per-agent
// websocket at GET /v1/agents/{id}/events.
//
// Session-scoped tools resolve the session id from the request body first
// and fall back to the configured correlation header, matched
// case-insensitively. A gate rejection is a successful tool call with a
// negative verdict; only transport and lifecycle failures map to non-200
// statuses.
package server
