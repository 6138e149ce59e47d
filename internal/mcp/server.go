package mcp

import (
	"context"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/leonletto/alfred/internal/llm"
)

// Server is the alfred MCP server that exposes the git assistant as tools.
type Server struct {
	assistant llm.Assistant
	repoDir   string
	version   string
	logger    *zap.Logger
	server    *gomcp.Server
}

// Option configures the MCP server.
type Option func(*Server)

// WithVersion sets the server version string.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithRepo lets tools read missing inputs (staged diff, conflict stages,
// rebase commits) from the repository at dir.
func WithRepo(dir string) Option {
	return func(s *Server) {
		s.repoDir = dir
	}
}

// WithLogger sets the logger. MCP owns stdout, so it must not write there.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates an MCP server answering with assistant, normally the
// daemon-with-local-fallback assistant.
func NewServer(assistant llm.Assistant, opts ...Option) *Server {
	s := &Server{
		assistant: assistant,
		version:   "dev",
		logger:    zap.NewNop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{
			Name:    "alfred",
			Version: s.version,
		},
		nil,
	)

	s.registerTools()

	return s
}

// Run serves MCP on stdin/stdout until the client disconnects or ctx is
// canceled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// registerTools registers all MCP tool handlers with the server.
func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "generate_commit_message",
		Description: "Write a conventional commit message for a diff. Without a diff, the staged changes of the repository are used",
	}, s.handleCommitMessage)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "suggest_branch_name",
		Description: "Suggest a git branch name (feature/, fix/, chore/...) for a description of the work",
	}, s.handleBranchName)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "suggest_conflict_resolution",
		Description: "Propose merged content for a file with a merge conflict. Without ours/theirs, the conflict stages of the file are read from the repository",
	}, s.handleConflictResolution)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "suggest_rebase_strategy",
		Description: "Suggest how to rebase a list of commits onto a branch (squash, reorder, reword). Without commits, onto..HEAD is used",
	}, s.handleRebaseStrategy)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "generate",
		Description: "Run a raw prompt through the local model",
	}, s.handleGenerate)
}
