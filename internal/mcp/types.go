package mcp

// CommitMessageInput is the input for the generate_commit_message MCP tool.
type CommitMessageInput struct {
	Diff string `json:"diff,omitempty" jsonschema:"Unified diff to describe. Default: the staged diff"`
}

// BranchNameInput is the input for the suggest_branch_name MCP tool.
type BranchNameInput struct {
	Description string `json:"description" jsonschema:"What the branch is for"`
}

// ConflictInput is the input for the suggest_conflict_resolution MCP tool.
type ConflictInput struct {
	File   string `json:"file" jsonschema:"Path of the conflicted file"`
	Ours   string `json:"ours,omitempty" jsonschema:"Content on the current branch"`
	Theirs string `json:"theirs,omitempty" jsonschema:"Content on the incoming branch"`
	Base   string `json:"base,omitempty" jsonschema:"Common ancestor content"`
}

// RebaseInput is the input for the suggest_rebase_strategy MCP tool.
type RebaseInput struct {
	Commits []string `json:"commits,omitempty" jsonschema:"One-line commit summaries. Default: onto..HEAD"`
	Onto    string   `json:"onto" jsonschema:"Branch to rebase onto"`
}

// GenerateInput is the input for the generate MCP tool.
type GenerateInput struct {
	Prompt    string `json:"prompt" jsonschema:"Prompt text"`
	MaxTokens uint32 `json:"max_tokens,omitempty" jsonschema:"Token budget. Default 256"`
}

// SuggestionOutput is the output of every alfred MCP tool.
type SuggestionOutput struct {
	Text string `json:"text" jsonschema:"Model output"`
}
