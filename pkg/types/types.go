package types

import (
	"time"
)

// Instance represents one tenant's persistent agent deployment: a registry
// row, a directory on disk, and at most one live process.
type Instance struct {
	ID          string
	Name        string // tenant-unique display key
	Port        int    // process-unique TCP port
	ConfigPath  string // absolute path to config.toml
	WorkspaceDir string
	Status      InstanceStatus
	PID         int // cached last-known OS PID, advisory only; authority is the pidfile + ownership probe
	CreatedAt   time.Time
}

// InstanceStatus represents the declared lifecycle state of an Instance.
type InstanceStatus string

const (
	InstanceStopped  InstanceStatus = "stopped"
	InstanceRunning  InstanceStatus = "running"
	InstanceArchived InstanceStatus = "archived"
)

// EntityStatus is the generic soft-delete status shared by registry entities.
type EntityStatus string

const (
	EntityActive  EntityStatus = "active"
	EntityPaused  EntityStatus = "paused"
	EntityDeleted EntityStatus = "deleted"
)

// Agent is a tenant-scoped, system-prompt-driven worker definition.
type Agent struct {
	ID             string
	TenantID       string
	Name           string
	Status         EntityStatus
	Description    string
	Model          string
	Temperature    float64
	SystemPrompt   string
	Tools          []string // tool names, stored as a JSON array
	Thinking       bool
	MaxRetries     int
	TimeoutSeconds int
	HandlerCode    string
	HandlerHash    uint64
	SandboxConfig  string // opaque JSON blob
	Version        int    // auto-incremented on every upsert
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Tool is a tenant-scoped callable handler with a declared parameter schema.
type Tool struct {
	ID               string
	TenantID         string
	Name             string
	Status           EntityStatus
	Description      string
	ParametersSchema string // opaque JSON blob
	HandlerCode      string
	HandlerHash      uint64
	Version          int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TaskRunStatus is the execution-progress status of a Task, independent of
// the entity's soft-delete Status field.
type TaskRunStatus string

const (
	TaskRunPending   TaskRunStatus = "pending"
	TaskRunRunning   TaskRunStatus = "running"
	TaskRunSucceeded TaskRunStatus = "succeeded"
	TaskRunFailed    TaskRunStatus = "failed"
)

// Task is a single invocation of an Agent, tracked from submission to
// completion.
type Task struct {
	ID        string
	TenantID  string
	Name      string
	Status    EntityStatus
	AgentID   string
	Input     string // opaque JSON blob
	RunStatus TaskRunStatus
	Result    string // opaque JSON blob, empty until RunStatus terminates
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Cron is a scheduled, recurring invocation of an Agent. Cron rows are
// hard-deleted: they represent no durable history worth retaining.
type Cron struct {
	ID        string
	TenantID  string
	Name      string
	Schedule  string // 5-field cron expression
	AgentID   string
	Payload   string // opaque JSON blob
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Memory is a durable fact or preference recorded for a tenant.
type Memory struct {
	ID           string
	TenantID     string
	Name         string
	Status       EntityStatus
	Kind         string // "fact", "preference", ...
	Content      string
	EmbeddingRef string // opaque pointer into an external embedding store
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PipelineStep is one stage of a Pipeline: an agent optionally paired with a
// specific tool invocation.
type PipelineStep struct {
	AgentID string `json:"agent_id"`
	ToolID  string `json:"tool_id,omitempty"`
}

// Pipeline is an ordered sequence of agent/tool steps.
type Pipeline struct {
	ID        string
	TenantID  string
	Name      string
	Status    EntityStatus
	Steps     []PipelineStep
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Network is a named container network a tenant's containers may join.
type Network struct {
	ID        string
	TenantID  string
	Name      string
	Status    EntityStatus
	Slug      string
	Driver    string // "bridge" or "internal"
	Subnet    string // optional CIDR
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Feed is a polled external source a tenant subscribes to.
type Feed struct {
	ID                 string
	TenantID           string
	Name               string
	Status             EntityStatus
	SourceURL          string
	PollIntervalSecond int
	LastPolledAt       time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ContainerRuntimeState is the last-observed state of a Container row.
type ContainerRuntimeState string

const (
	ContainerRunning ContainerRuntimeState = "running"
	ContainerStopped ContainerRuntimeState = "stopped"
	ContainerUnknown ContainerRuntimeState = "unknown"
)

// Container tracks one runtime container belonging to an Instance. Container
// rows are hard-deleted, same as Cron: they mirror ephemeral runtime state.
type Container struct {
	ID           string
	TenantID     string
	Name         string
	InstanceID   string
	NetworkID    string // optional, drives network_index
	RuntimeState ContainerRuntimeState
	LastStats    string // opaque JSON snapshot of the last ContainerStats read
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ContainerStats is a point-in-time resource usage snapshot parsed from the
// container runtime's stats output.
type ContainerStats struct {
	CPUPercent float64
	MemBytes   int64
	MemLimit   int64
	NetInBytes int64
	NetOutBytes int64
	PIDs       int
}

// MessageRole is the role of a message in a tenant daemon's transcript.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ContentBlockType distinguishes the kind of content carried by a Message.
type ContentBlockType string

const (
	BlockText       ContentBlockType = "text"
	BlockToolUse    ContentBlockType = "tool_use"
	BlockToolResult ContentBlockType = "tool_result"
)

// ContentBlock is one piece of a Message's content. Exactly one of the
// type-specific fields is populated, selected by Type.
type ContentBlock struct {
	Type ContentBlockType

	// BlockText
	Text string

	// BlockToolUse
	ToolUseID string
	ToolName  string
	ToolInput string // opaque JSON blob

	// BlockToolResult
	ToolResultForID string
	ToolResultText  string
	IsError         bool
}

// Message is one turn in a tenant daemon's transcript.
type Message struct {
	Role      MessageRole
	Content   []ContentBlock
	Timestamp time.Time
	Usage     TokenUsage
}

// TokenUsage tracks token accounting for a Message, summed when messages are
// merged during role-alternation repair.
type TokenUsage struct {
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
}
