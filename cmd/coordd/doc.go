/*
Package main provides the coordd service entry point.

coordd exposes the agent coordination operations over an HTTP tool-call
API: agent registration and discovery, session lifecycle, validated
message routing with gap-free per-session sequence numbers, and durable
message history with a rejection audit trail.

Subcommands: serve (start the service), version, health. The serve
command loads configuration with precedence defaults, YAML file, then
environment variables, and optionally watches the config file to hot
reload the validation gate rules.
*/
package main
