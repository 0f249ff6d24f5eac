/*
Package repair fixes transcript corruption before a tenant daemon makes its
next LLM call, grounded on the original implementation's
session::repair module.

Two independent passes run in sequence:

 1. RepairToolUse collects every tool_use id from assistant messages,
    drops tool_result blocks that don't match one (orphaned), keeps only
    the first tool_result per id (deduplicated), drops messages whose
    content becomes empty, and appends a synthetic is_error=true
    tool_result for every tool_use id that was never answered (missing).

 2. RepairRoleOrdering enforces strict role alternation: consecutive
    messages sharing an effective role (tool folds into user) are merged
    — content concatenated, the later timestamp kept, token usage summed.
    System messages pass through unchanged wherever they appear, though
    the contract only expects them at the head.

Both passes are pure functions over a message slice; neither depends on any
third-party library, since this is domain business logic with no natural
seam for a driver, parser, or transport library to attach to.
*/
package repair
