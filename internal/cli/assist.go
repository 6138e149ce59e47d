package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/leonletto/alfred/internal/gitctx"
	"github.com/leonletto/alfred/internal/llm"
)

// ErrNoStagedChanges is returned when commit-msg finds nothing to describe.
var ErrNoStagedChanges = errors.New("no staged changes; stage files with git add first")

// ErrNoConflicts is returned when resolve finds no conflicted files.
var ErrNoConflicts = errors.New("no conflicted files")

// DiffSource selects where CommitMessage reads its diff from.
type DiffSource struct {
	File  string    // "-" reads Stdin
	Stdin io.Reader // used when File is "-"
	Repo  string    // staged diff of this repository when File is empty
}

// CommitMessage suggests a commit message for the selected diff.
func CommitMessage(ctx context.Context, a llm.Assistant, src DiffSource) (string, error) {
	diff, err := readDiff(ctx, src)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(diff) == "" {
		return "", ErrNoStagedChanges
	}
	return a.CommitMessage(ctx, diff)
}

func readDiff(ctx context.Context, src DiffSource) (string, error) {
	switch src.File {
	case "":
		repo, err := gitctx.Open(ctx, src.Repo)
		if err != nil {
			return "", err
		}
		return repo.StagedDiff(ctx)
	case "-":
		data, err := io.ReadAll(src.Stdin)
		if err != nil {
			return "", fmt.Errorf("read diff from stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(src.File)
		if err != nil {
			return "", fmt.Errorf("read diff: %w", err)
		}
		return string(data), nil
	}
}

// BranchName suggests a branch name for a description.
func BranchName(ctx context.Context, a llm.Assistant, description string) (string, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return "", errors.New("description is required")
	}
	return a.BranchName(ctx, description)
}

// Resolution is one suggested conflict resolution.
type Resolution struct {
	File       string `json:"file"`
	Suggestion string `json:"suggestion"`
}

// ResolveConflicts suggests resolutions for file, or for every conflicted
// file when file is empty.
func ResolveConflicts(ctx context.Context, a llm.Assistant, repoDir, file string) ([]Resolution, error) {
	repo, err := gitctx.Open(ctx, repoDir)
	if err != nil {
		return nil, err
	}

	files := []string{file}
	if file == "" {
		if files, err = repo.ConflictedFiles(ctx); err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, ErrNoConflicts
		}
	}

	out := make([]Resolution, 0, len(files))
	for _, f := range files {
		c, err := repo.Conflict(ctx, f)
		if err != nil {
			return out, err
		}
		suggestion, err := a.ConflictResolution(ctx, c.File, c.Ours, c.Theirs, c.Base)
		if err != nil {
			return out, fmt.Errorf("%s: %w", f, err)
		}
		out = append(out, Resolution{File: f, Suggestion: suggestion})
	}
	return out, nil
}

// RebasePlan suggests a strategy for rebasing the current branch onto onto.
func RebasePlan(ctx context.Context, a llm.Assistant, repoDir, onto string) (string, []string, error) {
	repo, err := gitctx.Open(ctx, repoDir)
	if err != nil {
		return "", nil, err
	}
	commits, err := repo.RebaseCommits(ctx, onto)
	if err != nil {
		return "", nil, err
	}
	if len(commits) == 0 {
		return "", nil, fmt.Errorf("no commits between %s and HEAD", onto)
	}
	plan, err := a.RebaseStrategy(ctx, commits, onto)
	if err != nil {
		return "", commits, err
	}
	return plan, commits, nil
}
