// Package sandbox provides in-memory WFM source and destination
// implementations for local runs and tests.
//
// Both sides can be seeded from a YAML fixture and accept injected
// failures per operation and record key.
package sandbox
