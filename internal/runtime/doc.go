// Package runtime executes compiled graphs: it walks nodes from the entry node,
// merges their deltas, resolves edges and persists a checkpoint after every step.
//
// A run is strictly sequential for its thread. Serializing concurrent runs of the
// same thread is the caller's job (see pkg/thread).
package runtime
