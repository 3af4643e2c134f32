/*
Package ports defines the driven ports (interfaces) of the agent-graph engine.

These interfaces decouple the engine from the capabilities it invokes and from
the storage backends that make threads durable.

# Key Interfaces

  - LanguageModel / StructuredModel: the model capability used by agent and router nodes.
  - Decider: a closed-enumeration routing decision.
  - ToolInvoker: executes a named tool with arguments.
  - Checkpointer: persists per-thread checkpoints, totally ordered by step.
  - DistributedLocker: serializes a thread's runs across processes.

RunCheckpointerContract verifies a Checkpointer implementation against the contract.
*/
package ports
