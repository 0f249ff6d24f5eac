package repair

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/aria/pkg/types"
)

func userMsg(text string) types.Message {
	return types.Message{Role: types.RoleUser, Content: []types.ContentBlock{{Type: types.BlockText, Text: text}}}
}

func assistantMsg(text string) types.Message {
	return types.Message{Role: types.RoleAssistant, Content: []types.ContentBlock{{Type: types.BlockText, Text: text}}}
}

func assistantWithTool(text, toolID, toolName string) types.Message {
	return types.Message{
		Role: types.RoleAssistant,
		Content: []types.ContentBlock{
			{Type: types.BlockText, Text: text},
			{Type: types.BlockToolUse, ToolUseID: toolID, ToolName: toolName},
		},
	}
}

func toolResultMsg(toolUseID, content string) types.Message {
	return types.Message{
		Role:    types.RoleUser,
		Content: []types.ContentBlock{{Type: types.BlockToolResult, ToolResultForID: toolUseID, ToolResultText: content}},
	}
}

func TestRepairToolUse_NoRepairsNeeded(t *testing.T) {
	messages := []types.Message{
		userMsg("hello"),
		assistantWithTool("let me search", "tu-1", "search"),
		toolResultMsg("tu-1", "found it"),
		assistantMsg("here you go"),
	}

	repaired, report := RepairToolUse(messages)
	require.Len(t, repaired, 4)
	assert.Empty(t, report.MissingResults)
	assert.Empty(t, report.OrphanedResults)
	assert.Empty(t, report.DeduplicatedResults)
}

func TestRepairToolUse_MissingResultGetsSynthesized(t *testing.T) {
	messages := []types.Message{
		userMsg("hello"),
		assistantWithTool("let me search", "tu-1", "search"),
		assistantMsg("oops"),
	}

	repaired, report := RepairToolUse(messages)
	assert.Equal(t, []string{"tu-1"}, report.MissingResults)

	last := repaired[len(repaired)-1]
	assert.Equal(t, types.RoleUser, last.Role)
	require.Len(t, last.Content, 1)
	assert.True(t, last.Content[0].IsError)
	assert.Equal(t, "tu-1", last.Content[0].ToolResultForID)
}

func TestRepairToolUse_OrphanedResultIsDropped(t *testing.T) {
	messages := []types.Message{
		userMsg("hello"),
		assistantMsg("sure"),
		toolResultMsg("tu-ghost", "phantom result"),
	}

	repaired, report := RepairToolUse(messages)
	assert.Equal(t, []string{"tu-ghost"}, report.OrphanedResults)
	assert.Len(t, repaired, 2)
}

func TestRepairToolUse_DuplicateResultIsDeduplicated(t *testing.T) {
	messages := []types.Message{
		userMsg("hello"),
		assistantWithTool("searching", "tu-1", "search"),
		toolResultMsg("tu-1", "first result"),
		toolResultMsg("tu-1", "duplicate result"),
	}

	repaired, report := RepairToolUse(messages)
	assert.Equal(t, []string{"tu-1"}, report.DeduplicatedResults)

	count := 0
	for _, m := range repaired {
		for _, b := range m.Content {
			if b.Type == types.BlockToolResult && b.ToolResultForID == "tu-1" {
				count++
			}
		}
	}
	assert.Equal(t, 1, count)
}

func TestRepairToolUse_Mixed(t *testing.T) {
	messages := []types.Message{
		userMsg("hello"),
		assistantWithTool("doing two things", "tu-1", "read"),
		assistantWithTool("and another", "tu-2", "write"),
		toolResultMsg("tu-1", "done reading"),
		toolResultMsg("tu-orphan", "orphan"),
	}

	repaired, report := RepairToolUse(messages)
	assert.Equal(t, []string{"tu-2"}, report.MissingResults)
	assert.Equal(t, []string{"tu-orphan"}, report.OrphanedResults)
	assert.Empty(t, report.DeduplicatedResults)

	found := false
	for _, m := range repaired {
		for _, b := range m.Content {
			if b.Type == types.BlockToolResult && b.ToolResultForID == "tu-2" && b.IsError {
				found = true
			}
		}
	}
	assert.True(t, found)
}

func TestRepairRoleOrdering_AlreadyAlternating(t *testing.T) {
	messages := []types.Message{userMsg("hello"), assistantMsg("hi"), userMsg("how are you"), assistantMsg("good")}
	assert.Len(t, RepairRoleOrdering(messages), 4)
}

func TestRepairRoleOrdering_ConsecutiveUserMerge(t *testing.T) {
	messages := []types.Message{userMsg("hello"), userMsg("world"), assistantMsg("hi there")}

	repaired := RepairRoleOrdering(messages)
	require.Len(t, repaired, 2)
	assert.Len(t, repaired[0].Content, 2)
	assert.Equal(t, types.RoleUser, repaired[0].Role)
	assert.Equal(t, types.RoleAssistant, repaired[1].Role)
}

func TestRepairRoleOrdering_ToolRoleTreatedAsUser(t *testing.T) {
	messages := []types.Message{
		userMsg("hello"),
		assistantWithTool("searching", "tu-1", "search"),
		{Role: types.RoleTool, Content: []types.ContentBlock{{Type: types.BlockToolResult, ToolResultForID: "tu-1", ToolResultText: "found"}}},
		assistantMsg("here you go"),
	}

	repaired := RepairRoleOrdering(messages)
	assert.Equal(t, types.RoleUser, repaired[2].Role)
}

func TestRepairRoleOrdering_UsageMergesOnCollapse(t *testing.T) {
	msg1 := userMsg("a")
	msg1.Usage = types.TokenUsage{InputTokens: 10, OutputTokens: 5, CacheReadTokens: 2, CacheWriteTokens: 1}
	msg2 := userMsg("b")
	msg2.Usage = types.TokenUsage{InputTokens: 20, OutputTokens: 10, CacheReadTokens: 3, CacheWriteTokens: 4}

	repaired := RepairRoleOrdering([]types.Message{msg1, msg2})
	require.Len(t, repaired, 1)
	assert.Equal(t, 30, repaired[0].Usage.InputTokens)
	assert.Equal(t, 15, repaired[0].Usage.OutputTokens)
	assert.Equal(t, 5, repaired[0].Usage.CacheReadTokens)
	assert.Equal(t, 5, repaired[0].Usage.CacheWriteTokens)
}

func TestRepairRoleOrdering_EmptyInput(t *testing.T) {
	assert.Empty(t, RepairRoleOrdering(nil))
	repaired, report := RepairToolUse(nil)
	assert.Empty(t, repaired)
	assert.Equal(t, ToolRepairReport{}, report)
}

func TestRepairRoleOrdering_SystemMessagePassesThrough(t *testing.T) {
	messages := []types.Message{
		{Role: types.RoleSystem, Content: []types.ContentBlock{{Type: types.BlockText, Text: "system prompt"}}},
		userMsg("hello"),
		assistantMsg("hi"),
	}

	repaired := RepairRoleOrdering(messages)
	require.Len(t, repaired, 3)
	assert.Equal(t, types.RoleSystem, repaired[0].Role)
}

func TestExtractToolCallIDs(t *testing.T) {
	messages := []types.Message{
		userMsg("hello"),
		assistantWithTool("a", "tu-1", "read"),
		assistantWithTool("b", "tu-2", "write"),
		toolResultMsg("tu-1", "done"),
	}
	assert.Equal(t, []string{"tu-1", "tu-2"}, ExtractToolCallIDs(messages))
}

func TestExtractToolCallIDs_None(t *testing.T) {
	assert.Empty(t, ExtractToolCallIDs([]types.Message{userMsg("hello"), assistantMsg("hi")}))
}
