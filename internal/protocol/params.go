package protocol

// DefaultMaxTokens is used when a generate request omits max_tokens.
const DefaultMaxTokens uint32 = 256

// GenerateParams are the params of the generate method.
type GenerateParams struct {
	Prompt    string `json:"prompt"`
	MaxTokens uint32 `json:"max_tokens"`
}

// CommitMessageParams are the params of generate_commit_message.
type CommitMessageParams struct {
	Diff string `json:"diff"`
}

// BranchNameParams are the params of suggest_branch_name.
type BranchNameParams struct {
	Description string `json:"description"`
}

// ConflictParams are the params of suggest_conflict_resolution.
type ConflictParams struct {
	File   string `json:"file"`
	Ours   string `json:"ours"`
	Theirs string `json:"theirs"`
	Base   string `json:"base"`
}

// RebaseParams are the params of suggest_rebase_strategy.
type RebaseParams struct {
	Commits []string `json:"commits"`
	Onto    string   `json:"onto"`
}

// Health is the JSON document carried in the result of the health method.
type Health struct {
	Status         string `json:"status"`
	UptimeMs       int64  `json:"uptime_ms"`
	Version        string `json:"version"`
	PID            int    `json:"pid"`
	InstanceID     string `json:"instance_id,omitempty"`
	ModelLoaded    bool   `json:"model_loaded"`
	RequestsServed uint64 `json:"requests_served"`
	IdleTimeoutMs  int64  `json:"idle_timeout_ms"`
}
