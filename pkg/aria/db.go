package aria

import (
	"github.com/jmoiron/sqlx"

	"github.com/cuemby/aria/pkg/registry"
)

// Registries bundles one Store per entity kind against a shared database
// handle, mirroring the tenant daemon's registry module layout.
type Registries struct {
	DB *sqlx.DB

	Agents     *AgentRegistry
	Tools      *ToolRegistry
	Tasks      *TaskRegistry
	Crons      *CronRegistry
	Memories   *MemoryRegistry
	Pipelines  *PipelineRegistry
	Networks   *NetworkRegistry
	Feeds      *FeedRegistry
	Containers *ContainerRegistry
}

// Open opens the SQLite database at path, migrates its schema, and
// constructs every entity registry against it.
func Open(path string) (*Registries, error) {
	db, err := registry.Open(path)
	if err != nil {
		return nil, err
	}

	return &Registries{
		DB:         db,
		Agents:     newAgentRegistry(db),
		Tools:      newToolRegistry(db),
		Tasks:      newTaskRegistry(db),
		Crons:      newCronRegistry(db),
		Memories:   newMemoryRegistry(db),
		Pipelines:  newPipelineRegistry(db),
		Networks:   newNetworkRegistry(db),
		Feeds:      newFeedRegistry(db),
		Containers: newContainerRegistry(db),
	}, nil
}

// Close closes the shared database handle.
func (r *Registries) Close() error {
	return r.DB.Close()
}
