// Package history is the append-only, per-session ordered log of accepted
// messages, plus a separate audit log of rejections.
//
// Accepted messages carry contiguous sequence numbers starting at 1; the
// store enforces contiguity on append so a gap can never be persisted.
// Backends: in-process memory and redis.
package history
