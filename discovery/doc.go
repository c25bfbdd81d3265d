// Package discovery answers capability queries against the agent registry.
// Agents are matched by tag intersection ("any") or superset ("all") and
// ordered by recency of activity.
package discovery
