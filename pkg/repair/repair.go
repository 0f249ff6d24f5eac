package repair

import (
	"github.com/cuemby/aria/pkg/types"
)

// ToolRepairReport summarizes what RepairToolUse changed.
type ToolRepairReport struct {
	// MissingResults are tool_use ids with no matching tool_result; a
	// synthetic error result was appended for each.
	MissingResults []string
	// OrphanedResults are tool_result tool_use_ids with no matching
	// tool_use; the blocks were dropped.
	OrphanedResults []string
	// DeduplicatedResults are tool_use_ids that had more than one
	// tool_result; only the first was kept.
	DeduplicatedResults []string
}

const missingResultText = "Error: tool execution was interrupted — no result recorded."

// RepairToolUse rebuilds messages so every tool_use block in an assistant
// message has exactly one matching tool_result in a subsequent message:
// orphaned results are dropped, duplicates are collapsed to the first, and
// a synthetic is_error result is synthesized for anything never answered.
func RepairToolUse(messages []types.Message) ([]types.Message, ToolRepairReport) {
	var report ToolRepairReport

	// Pass 1: collect tool_use ids, in order of first appearance.
	var toolUseIDs []string
	toolUseSet := make(map[string]struct{})
	for _, msg := range messages {
		if msg.Role != types.RoleAssistant {
			continue
		}
		for _, block := range msg.Content {
			if block.Type == types.BlockToolUse {
				if _, seen := toolUseSet[block.ToolUseID]; !seen {
					toolUseSet[block.ToolUseID] = struct{}{}
					toolUseIDs = append(toolUseIDs, block.ToolUseID)
				}
			}
		}
	}

	// Pass 2: rebuild messages, dropping orphans and all-but-first
	// duplicate tool_results.
	resultSeen := make(map[string]struct{})
	result := make([]types.Message, 0, len(messages))

	for _, msg := range messages {
		newContent := make([]types.ContentBlock, 0, len(msg.Content))

		for _, block := range msg.Content {
			if block.Type != types.BlockToolResult {
				newContent = append(newContent, block)
				continue
			}

			if _, ok := toolUseSet[block.ToolResultForID]; !ok {
				report.OrphanedResults = append(report.OrphanedResults, block.ToolResultForID)
				continue
			}
			if _, dup := resultSeen[block.ToolResultForID]; dup {
				report.DeduplicatedResults = append(report.DeduplicatedResults, block.ToolResultForID)
				continue
			}
			resultSeen[block.ToolResultForID] = struct{}{}
			newContent = append(newContent, block)
		}

		if len(newContent) == 0 {
			continue
		}
		repaired := msg
		repaired.Content = newContent
		result = append(result, repaired)
	}

	// Pass 3: synthesize a trailing user message with an error result for
	// every tool_use id still unanswered.
	var missing []types.ContentBlock
	for _, id := range toolUseIDs {
		if _, ok := resultSeen[id]; !ok {
			report.MissingResults = append(report.MissingResults, id)
			missing = append(missing, types.ContentBlock{
				Type:            types.BlockToolResult,
				ToolResultForID: id,
				ToolResultText:  missingResultText,
				IsError:         true,
			})
		}
	}
	if len(missing) > 0 {
		result = append(result, types.Message{
			Role:    types.RoleUser,
			Content: missing,
		})
	}

	return result, report
}

// effectiveRole folds tool into user for role-alternation purposes.
func effectiveRole(role types.MessageRole) types.MessageRole {
	if role == types.RoleTool {
		return types.RoleUser
	}
	return role
}

// RepairRoleOrdering enforces strict role alternation: consecutive
// messages sharing an effective role are merged (content concatenated,
// later timestamp kept, usage summed); system messages pass through
// unchanged; tool-role messages are folded into user-role.
func RepairRoleOrdering(messages []types.Message) []types.Message {
	if len(messages) == 0 {
		return nil
	}

	result := make([]types.Message, 0, len(messages))

	for _, msg := range messages {
		if msg.Role == types.RoleSystem {
			result = append(result, msg)
			continue
		}

		role := effectiveRole(msg.Role)

		if len(result) > 0 {
			last := &result[len(result)-1]
			lastRole := effectiveRole(last.Role)
			if last.Role != types.RoleSystem && lastRole == role {
				last.Content = append(last.Content, msg.Content...)
				if !msg.Timestamp.IsZero() {
					last.Timestamp = msg.Timestamp
				}
				last.Usage.InputTokens += msg.Usage.InputTokens
				last.Usage.OutputTokens += msg.Usage.OutputTokens
				last.Usage.CacheReadTokens += msg.Usage.CacheReadTokens
				last.Usage.CacheWriteTokens += msg.Usage.CacheWriteTokens
				continue
			}
		}

		out := msg
		out.Role = role
		result = append(result, out)
	}

	return result
}

// ExtractToolCallIDs returns every tool_use id appearing in assistant
// messages, in order of first appearance.
func ExtractToolCallIDs(messages []types.Message) []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, msg := range messages {
		if msg.Role != types.RoleAssistant {
			continue
		}
		for _, block := range msg.Content {
			if block.Type == types.BlockToolUse {
				if _, dup := seen[block.ToolUseID]; dup {
					continue
				}
				seen[block.ToolUseID] = struct{}{}
				ids = append(ids, block.ToolUseID)
			}
		}
	}
	return ids
}
