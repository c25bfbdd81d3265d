// Package types defines the shared data model for the coordination service:
// agent descriptors, sessions, messages, validation verdicts, and the
// structured error type used across all components.
package types
