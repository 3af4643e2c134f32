/*
Package domain contains the core types of the agent-graph engine.

It defines the shared state a graph run evolves, the merge rules applied to it,
conversation messages, checkpoints and the error kinds the engine reports. The
package is pure: it performs no I/O and depends only on the schema package.

# Key Entities

  - State: a field map evolved by merging node deltas through per-field reducers.
  - Message: one element of the conversation sequence.
  - Checkpoint: an immutable snapshot of a thread's state after a step.
  - StepEvent: what a node produced during one executor step.
*/
package domain
