/*
Package types defines the core data structures shared across the control
plane.

This package contains the fundamental types that represent the orchestrator's
domain model: tenant instances, the per-entity registry rows (agents, tools,
tasks, crons, memories, pipelines, networks, feeds, containers), and the
transcript types used by the repair pass. These types are used by every other
package for persistence, API responses, and lifecycle/reconciliation logic.

# Core Types

Instance Lifecycle:
  - Instance: one tenant's persistent agent deployment — a registry row, an
    on-disk directory, and at most one live process
  - InstanceStatus: stopped, running, or archived

Tenant Registry Entities:
  - Agent, Tool: versioned, hash-tracked handler definitions
  - Task: a single invocation of an Agent, with its own RunStatus
  - Cron: a scheduled, recurring Agent invocation (hard-deleted)
  - Memory: a durable fact or preference
  - Pipeline: an ordered sequence of agent/tool steps
  - Network: a named container network tenants join
  - Feed: a polled external source
  - Container: last-observed runtime state of one container (hard-deleted)
  - EntityStatus: active, paused, or deleted (soft-delete), shared by every
    entity kind except Cron and Container

Transcript Repair:
  - Message, ContentBlock, MessageRole, ContentBlockType: the tool_use/
    tool_result transcript shape consumed by pkg/repair

# Design Patterns

Enumeration Pattern:

	Status-like fields use typed string constants:
	  type InstanceStatus string
	  const (
	      InstanceStopped InstanceStatus = "stopped"
	      InstanceRunning InstanceStatus = "running"
	  )

Soft vs. Hard Delete:

	Agent, Tool, Task, Memory, Pipeline, Network, and Feed carry
	EntityStatus and are soft-deleted (status="deleted", removed from
	in-memory indexes). Cron and Container are hard-deleted: they
	represent ephemeral runtime objects with no audit value.

Opaque Payloads:

	Fields such as Agent.SandboxConfig, Task.Input/Result, and
	Container.LastStats are stored as opaque JSON blobs rather than
	nested structs, matching how pkg/registry persists and reloads them.

# Integration Points

This package integrates with:

  - pkg/registry and pkg/aria: persist these types to SQLite and index them
    in memory by tenant, name, and (for containers) network
  - pkg/lifecycle: reads and mutates Instance status/pid
  - pkg/reconciler: compares declared Instance status against observed state
  - pkg/api: serializes these types to JSON responses
  - pkg/repair: operates on Message/ContentBlock transcripts
*/
package types
