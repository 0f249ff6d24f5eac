package aria

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/aria/pkg/types"
)

func newTestRegistries(t *testing.T) *Registries {
	t.Helper()
	regs, err := Open(filepath.Join(t.TempDir(), "aria.db"))
	require.NoError(t, err)
	t.Cleanup(func() { regs.Close() })
	return regs
}

func TestAgentRegistry_UploadUpsertsByTenantAndName(t *testing.T) {
	regs := newTestRegistries(t)
	ctx := context.Background()

	first, err := regs.Agents.Upload(ctx, AgentUpload{
		TenantID: "tenant-a", Name: "triager", Model: "claude", HandlerCode: "return 1",
	})
	require.NoError(t, err)
	require.Equal(t, 1, first.Version)

	second, err := regs.Agents.Upload(ctx, AgentUpload{
		TenantID: "tenant-a", Name: "triager", Model: "claude", HandlerCode: "return 2",
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID, "upsert on an existing name must reuse the id")
	require.Equal(t, 2, second.Version)
	require.NotEqual(t, first.HandlerHash, second.HandlerHash, "handler hash must change when handler source changes")

	count, err := regs.Agents.Count(ctx, "tenant-a")
	require.NoError(t, err)
	require.Equal(t, 1, count, "upsert must not create a second row")
}

func TestAgentRegistry_GetByNameAndPromptSection(t *testing.T) {
	regs := newTestRegistries(t)
	ctx := context.Background()

	_, err := regs.Agents.Upload(ctx, AgentUpload{
		TenantID: "tenant-a", Name: "triager", Description: "Routes incoming tickets", Model: "claude",
	})
	require.NoError(t, err)

	got, ok, err := regs.Agents.GetByName(ctx, "tenant-a", "triager")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "triager", got.Name)

	section, err := regs.Agents.PromptSection(ctx, "tenant-a")
	require.NoError(t, err)
	require.Contains(t, section, "triager")
	require.Contains(t, section, "Routes incoming tickets")

	empty, err := regs.Agents.PromptSection(ctx, "tenant-b")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestAgentRegistry_PromptSectionIsDeterministicallyOrdered(t *testing.T) {
	regs := newTestRegistries(t)
	ctx := context.Background()

	// Upload in an order that does not match name order, so a test relying
	// on map iteration or insertion order would be unreliable.
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := regs.Agents.Upload(ctx, AgentUpload{TenantID: "tenant-a", Name: name})
		require.NoError(t, err)
	}

	first, err := regs.Agents.PromptSection(ctx, "tenant-a")
	require.NoError(t, err)

	alphaIdx := strings.Index(first, "alpha")
	midIdx := strings.Index(first, "mid")
	zetaIdx := strings.Index(first, "zeta")
	require.True(t, alphaIdx < midIdx && midIdx < zetaIdx, "prompt section must list agents in name order: %q", first)

	// Repeated calls must render the identical text, not just the same set.
	for i := 0; i < 5; i++ {
		again, err := regs.Agents.PromptSection(ctx, "tenant-a")
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestAgentRegistry_DeleteIsSoftAndRemovesFromLookups(t *testing.T) {
	regs := newTestRegistries(t)
	ctx := context.Background()

	created, err := regs.Agents.Upload(ctx, AgentUpload{TenantID: "tenant-a", Name: "triager"})
	require.NoError(t, err)

	ok, err := regs.Agents.Delete(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, ok)

	_, found, err := regs.Agents.GetByName(ctx, "tenant-a", "triager")
	require.NoError(t, err)
	require.False(t, found)

	// Re-uploading the same name after a soft delete mints a fresh row rather
	// than colliding with the deleted one.
	recreated, err := regs.Agents.Upload(ctx, AgentUpload{TenantID: "tenant-a", Name: "triager"})
	require.NoError(t, err)
	require.NotEqual(t, created.ID, recreated.ID)
}

func TestToolRegistry_HandlerHashChangesWithSource(t *testing.T) {
	regs := newTestRegistries(t)
	ctx := context.Background()

	v1, err := regs.Tools.Upload(ctx, ToolUpload{TenantID: "tenant-a", Name: "search", HandlerCode: "fn a() {}"})
	require.NoError(t, err)

	v2, err := regs.Tools.Upload(ctx, ToolUpload{TenantID: "tenant-a", Name: "search", HandlerCode: "fn b() {}"})
	require.NoError(t, err)

	require.Equal(t, v1.ID, v2.ID)
	require.Equal(t, 2, v2.Version)
	require.NotEqual(t, v1.HandlerHash, v2.HandlerHash)

	same, err := regs.Tools.Upload(ctx, ToolUpload{TenantID: "tenant-a", Name: "search", HandlerCode: "fn b() {}"})
	require.NoError(t, err)
	require.Equal(t, v2.HandlerHash, same.HandlerHash, "identical source must hash identically")
}

func TestToolRegistry_PromptSectionIsDeterministicallyOrdered(t *testing.T) {
	regs := newTestRegistries(t)
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := regs.Tools.Upload(ctx, ToolUpload{TenantID: "tenant-a", Name: name})
		require.NoError(t, err)
	}

	first, err := regs.Tools.PromptSection(ctx, "tenant-a")
	require.NoError(t, err)

	alphaIdx := strings.Index(first, "alpha")
	midIdx := strings.Index(first, "mid")
	zetaIdx := strings.Index(first, "zeta")
	require.True(t, alphaIdx < midIdx && midIdx < zetaIdx, "prompt section must list tools in name order: %q", first)

	for i := 0; i < 5; i++ {
		again, err := regs.Tools.PromptSection(ctx, "tenant-a")
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestCronRegistry_UploadRejectsInvalidSchedule(t *testing.T) {
	regs := newTestRegistries(t)
	ctx := context.Background()

	_, err := regs.Crons.Upload(ctx, CronUpload{
		TenantID: "tenant-a", Name: "bad", Schedule: "not a cron expression",
	})
	require.Error(t, err)

	count, err := regs.Crons.List(ctx, "tenant-a")
	require.NoError(t, err)
	require.Empty(t, count, "a rejected upload must not leave a partial row behind")
}

func TestCronRegistry_HardDeleteRemovesRow(t *testing.T) {
	regs := newTestRegistries(t)
	ctx := context.Background()

	created, err := regs.Crons.Upload(ctx, CronUpload{
		TenantID: "tenant-a", Name: "nightly", Schedule: "0 0 * * *", Enabled: true,
	})
	require.NoError(t, err)

	all, err := regs.Crons.ListAllEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	ok, err := regs.Crons.Delete(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, ok)

	_, found, err := regs.Crons.Get(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, found, "hard-deleted cron rows must not resurrect via cache")

	all, err = regs.Crons.ListAllEnabled(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestCronRegistry_ListAllEnabledExcludesDisabled(t *testing.T) {
	regs := newTestRegistries(t)
	ctx := context.Background()

	_, err := regs.Crons.Upload(ctx, CronUpload{TenantID: "tenant-a", Name: "on", Schedule: "0 0 * * *", Enabled: true})
	require.NoError(t, err)
	_, err = regs.Crons.Upload(ctx, CronUpload{TenantID: "tenant-a", Name: "off", Schedule: "0 0 * * *", Enabled: false})
	require.NoError(t, err)

	enabled, err := regs.Crons.ListAllEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	require.Equal(t, "on", enabled[0].Name)
}

func TestContainerRegistry_NetworkIndexMembership(t *testing.T) {
	regs := newTestRegistries(t)
	ctx := context.Background()

	net, err := regs.Networks.Upload(ctx, NetworkUpload{TenantID: "tenant-a", Name: "net-1"})
	require.NoError(t, err)

	c1, err := regs.Containers.Upload(ctx, ContainerUpload{
		TenantID: "tenant-a", Name: "c1", InstanceID: "inst-1", NetworkID: net.ID,
	})
	require.NoError(t, err)
	_, err = regs.Containers.Upload(ctx, ContainerUpload{
		TenantID: "tenant-a", Name: "c2", InstanceID: "inst-2", NetworkID: "other-net",
	})
	require.NoError(t, err)

	members, err := regs.Containers.ListByNetwork(ctx, net.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, c1.ID, members[0].ID)
}

func TestContainerRegistry_UpdateStateAndHardDelete(t *testing.T) {
	regs := newTestRegistries(t)
	ctx := context.Background()

	created, err := regs.Containers.Upload(ctx, ContainerUpload{
		TenantID: "tenant-a", Name: "c1", InstanceID: "inst-1",
	})
	require.NoError(t, err)
	require.Equal(t, types.ContainerUnknown, created.RuntimeState)

	err = regs.Containers.UpdateState(ctx, created.ID, types.ContainerRunning, `{"cpu_pct":1.5}`)
	require.NoError(t, err)

	got, ok, err := regs.Containers.Get(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.ContainerRunning, got.RuntimeState)
	require.Equal(t, `{"cpu_pct":1.5}`, got.LastStats)

	ok, err = regs.Containers.Delete(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, ok)

	_, found, err := regs.Containers.Get(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, found)
}

func TestNetworkRegistry_DefaultsDriverToBridge(t *testing.T) {
	regs := newTestRegistries(t)
	ctx := context.Background()

	created, err := regs.Networks.Upload(ctx, NetworkUpload{TenantID: "tenant-a", Name: "net-1"})
	require.NoError(t, err)
	require.Equal(t, "bridge", created.Driver)
}

func TestTaskRegistry_UpsertAndStatusUpdate(t *testing.T) {
	regs := newTestRegistries(t)
	ctx := context.Background()

	created, err := regs.Tasks.Submit(ctx, TaskUpload{
		TenantID: "tenant-a", Name: "task-1", AgentID: "agent-1", Input: "do the thing",
	})
	require.NoError(t, err)
	require.Equal(t, types.TaskRunPending, created.RunStatus)

	err = regs.Tasks.UpdateRun(ctx, created.ID, types.TaskRunSucceeded, "done", "")
	require.NoError(t, err)

	got, ok, err := regs.Tasks.Get(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.TaskRunSucceeded, got.RunStatus)
	require.Equal(t, "done", got.Result)
}

func TestMemoryRegistry_TenantIsolation(t *testing.T) {
	regs := newTestRegistries(t)
	ctx := context.Background()

	_, err := regs.Memories.Upload(ctx, MemoryUpload{TenantID: "tenant-a", Name: "note-1", Content: "remember this"})
	require.NoError(t, err)
	_, err = regs.Memories.Upload(ctx, MemoryUpload{TenantID: "tenant-b", Name: "note-1", Content: "different tenant"})
	require.NoError(t, err)

	listA, err := regs.Memories.List(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, listA, 1)

	listB, err := regs.Memories.List(ctx, "tenant-b")
	require.NoError(t, err)
	require.Len(t, listB, 1)
	require.NotEqual(t, listA[0].ID, listB[0].ID)
}

func TestPipelineRegistry_Upsert(t *testing.T) {
	regs := newTestRegistries(t)
	ctx := context.Background()

	created, err := regs.Pipelines.Upload(ctx, PipelineUpload{
		TenantID: "tenant-a", Name: "ingest",
		Steps: []types.PipelineStep{{AgentID: "fetcher"}, {AgentID: "parser"}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Len(t, created.Steps, 2)

	updated, err := regs.Pipelines.Upload(ctx, PipelineUpload{
		TenantID: "tenant-a", Name: "ingest",
		Steps: []types.PipelineStep{{AgentID: "fetcher"}, {AgentID: "parser"}, {AgentID: "store"}},
	})
	require.NoError(t, err)
	require.Equal(t, created.ID, updated.ID)
	require.Len(t, updated.Steps, 3)
}

func TestFeedRegistry_Upsert(t *testing.T) {
	regs := newTestRegistries(t)
	ctx := context.Background()

	created, err := regs.Feeds.Upload(ctx, FeedUpload{
		TenantID: "tenant-a", Name: "news", SourceURL: "https://example.com/feed", PollIntervalSeconds: 60,
	})
	require.NoError(t, err)
	require.Equal(t, 60, created.PollIntervalSecond)

	list, err := regs.Feeds.List(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, list, 1)
}
