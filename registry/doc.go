// Package registry holds the set of known agent descriptors and owns agent
// identity and liveness state. It is initialized once at process start and
// exposed only through its operation set; no other component mutates agent
// state directly.
package registry
