package mcp

import (
	"context"
	"fmt"
	"strings"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/leonletto/alfred/internal/gitctx"
	"github.com/leonletto/alfred/internal/protocol"
)

func (s *Server) handleCommitMessage(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input CommitMessageInput,
) (*gomcp.CallToolResult, SuggestionOutput, error) {
	diff := input.Diff
	if strings.TrimSpace(diff) == "" {
		repo, err := s.repo(ctx)
		if err != nil {
			return nil, SuggestionOutput{}, fmt.Errorf("'diff' is required: %w", err)
		}
		if diff, err = repo.StagedDiff(ctx); err != nil {
			return nil, SuggestionOutput{}, fmt.Errorf("read staged diff: %w", err)
		}
		if strings.TrimSpace(diff) == "" {
			return nil, SuggestionOutput{}, fmt.Errorf("no staged changes")
		}
	}
	return s.answer("generate_commit_message", func() (string, error) {
		return s.assistant.CommitMessage(ctx, diff)
	})
}

func (s *Server) handleBranchName(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input BranchNameInput,
) (*gomcp.CallToolResult, SuggestionOutput, error) {
	if strings.TrimSpace(input.Description) == "" {
		return nil, SuggestionOutput{}, fmt.Errorf("'description' is required")
	}
	return s.answer("suggest_branch_name", func() (string, error) {
		return s.assistant.BranchName(ctx, input.Description)
	})
}

func (s *Server) handleConflictResolution(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input ConflictInput,
) (*gomcp.CallToolResult, SuggestionOutput, error) {
	if input.File == "" {
		return nil, SuggestionOutput{}, fmt.Errorf("'file' is required")
	}
	if input.Ours == "" && input.Theirs == "" {
		repo, err := s.repo(ctx)
		if err != nil {
			return nil, SuggestionOutput{}, fmt.Errorf("'ours' and 'theirs' are required: %w", err)
		}
		c, err := repo.Conflict(ctx, input.File)
		if err != nil {
			return nil, SuggestionOutput{}, err
		}
		input.Ours, input.Theirs, input.Base = c.Ours, c.Theirs, c.Base
	}
	return s.answer("suggest_conflict_resolution", func() (string, error) {
		return s.assistant.ConflictResolution(ctx, input.File, input.Ours, input.Theirs, input.Base)
	})
}

func (s *Server) handleRebaseStrategy(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input RebaseInput,
) (*gomcp.CallToolResult, SuggestionOutput, error) {
	if input.Onto == "" {
		return nil, SuggestionOutput{}, fmt.Errorf("'onto' is required")
	}
	commits := input.Commits
	if len(commits) == 0 {
		repo, err := s.repo(ctx)
		if err != nil {
			return nil, SuggestionOutput{}, fmt.Errorf("'commits' is required: %w", err)
		}
		if commits, err = repo.RebaseCommits(ctx, input.Onto); err != nil {
			return nil, SuggestionOutput{}, fmt.Errorf("list commits: %w", err)
		}
		if len(commits) == 0 {
			return nil, SuggestionOutput{}, fmt.Errorf("no commits between %s and HEAD", input.Onto)
		}
	}
	return s.answer("suggest_rebase_strategy", func() (string, error) {
		return s.assistant.RebaseStrategy(ctx, commits, input.Onto)
	})
}

func (s *Server) handleGenerate(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input GenerateInput,
) (*gomcp.CallToolResult, SuggestionOutput, error) {
	if input.Prompt == "" {
		return nil, SuggestionOutput{}, fmt.Errorf("'prompt' is required")
	}
	maxTokens := input.MaxTokens
	if maxTokens == 0 {
		maxTokens = protocol.DefaultMaxTokens
	}
	return s.answer("generate", func() (string, error) {
		return s.assistant.Generate(ctx, input.Prompt, maxTokens)
	})
}

func (s *Server) answer(tool string, fn func() (string, error)) (*gomcp.CallToolResult, SuggestionOutput, error) {
	text, err := fn()
	if err != nil {
		s.logger.Warn("tool failed", zap.String("tool", tool), zap.Error(err))
		return nil, SuggestionOutput{}, fmt.Errorf("%s: %w", tool, err)
	}
	return nil, SuggestionOutput{Text: text}, nil
}

func (s *Server) repo(ctx context.Context) (*gitctx.Repo, error) {
	if s.repoDir == "" {
		return nil, fmt.Errorf("no repository configured")
	}
	return gitctx.Open(ctx, s.repoDir)
}
