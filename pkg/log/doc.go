/*
Package log provides structured logging for the control plane using zerolog.

The package wraps zerolog to provide JSON-structured logging with
component-specific child loggers, configurable log levels, and helper
functions for the common one-line logging calls scattered through cmd/ and
early startup code, before a component has its own logger.

# Core Components

Global Logger:
  - Logger: package-level zerolog.Logger instance
  - Initialized once via Init() at process startup
  - Accessible from every package without being passed explicitly

Log Levels:
  - Debug: verbose detail, development only
  - Info: default production level
  - Warn: unexpected but non-fatal conditions
  - Error: failed operations

Context Loggers:
  - WithComponent: tags every log line with a component name
    (e.g. "lifecycle", "reconciler", "registry")
  - WithInstanceID: tags every log line with the instance a log line
    concerns
  - WithTenantID: tags every log line with the owning tenant
  - WithTaskID: tags every log line with a task invocation id

# Usage

Initializing the logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component loggers:

	lifecycleLog := log.WithComponent("lifecycle")
	lifecycleLog.Info().Str("instance", name).Msg("instance started")

	reconcileLog := log.WithComponent("reconciler").
		With().Str("instance", inst.Name).Logger()
	reconcileLog.Warn().Msg("crash detected")

# Design Patterns

Global Logger Pattern: a single package-level Logger, initialized once at
startup, so deeply nested calls never need a logger threaded through.

Context Logger Pattern: component/instance/tenant/task loggers are child
loggers created with .With() — they carry their context fields into every
subsequent log line without repeating them at each call site.

# Security

Never log secrets, tokens, or full handler source; log handler_hash, not
handler_code.
*/
package log
