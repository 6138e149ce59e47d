// Package gitctx reads the repository state the AI commands feed to the
// assistant: staged diffs, conflicted files and commits to rebase.
package gitctx

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/leonletto/alfred/internal/safecmd"
)

// ErrNotRepo is returned when dir is not inside a git work tree.
var ErrNotRepo = errors.New("not a git repository")

// Status summarizes `git status --porcelain=v1`.
type Status struct {
	Branch    string   `json:"branch"`
	Staged    []string `json:"staged"`
	Unstaged  []string `json:"unstaged"`
	Untracked []string `json:"untracked"`
	Conflicts []string `json:"conflicts"`
}

// Conflict holds the three index stages of a conflicted file. Missing
// stages (added on one side only) are empty.
type Conflict struct {
	File   string `json:"file"`
	Base   string `json:"base"`
	Ours   string `json:"ours"`
	Theirs string `json:"theirs"`
}

// Repo runs git queries in one working directory.
type Repo struct {
	Dir string
}

// Open returns the repository containing dir.
func Open(ctx context.Context, dir string) (*Repo, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, fmt.Errorf("git not installed: %w", err)
	}
	top, err := safecmd.Git(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRepo, dir)
	}
	return &Repo{Dir: strings.TrimSpace(string(top))}, nil
}

func (r *Repo) git(ctx context.Context, args ...string) (string, error) {
	out, err := safecmd.Git(ctx, r.Dir, args...)
	return string(out), err
}

// StagedDiff returns `git diff --cached`.
func (r *Repo) StagedDiff(ctx context.Context) (string, error) {
	return r.git(ctx, "diff", "--cached")
}

// Status parses the porcelain status of the work tree.
func (r *Repo) Status(ctx context.Context) (*Status, error) {
	st := &Status{
		Staged:    []string{},
		Unstaged:  []string{},
		Untracked: []string{},
		Conflicts: []string{},
	}
	if branch, err := r.git(ctx, "branch", "--show-current"); err == nil {
		st.Branch = strings.TrimSpace(branch)
	}

	out, err := r.git(ctx, "status", "--porcelain=v1")
	if err != nil {
		return nil, err
	}
	for _, line := range strings.Split(out, "\n") {
		// Porcelain format: "XY path". Leading spaces are significant.
		if len(line) < 4 {
			continue
		}
		index, worktree, file := line[0], line[1], line[3:]
		switch {
		case index == 'U' || worktree == 'U' ||
			(index == 'A' && worktree == 'A') || (index == 'D' && worktree == 'D'):
			st.Conflicts = append(st.Conflicts, file)
		case index == '?':
			st.Untracked = append(st.Untracked, file)
		default:
			if index != ' ' {
				st.Staged = append(st.Staged, file)
			}
			if worktree != ' ' {
				st.Unstaged = append(st.Unstaged, file)
			}
		}
	}
	return st, nil
}

// ConflictedFiles lists files with unresolved merge conflicts.
func (r *Repo) ConflictedFiles(ctx context.Context) ([]string, error) {
	st, err := r.Status(ctx)
	if err != nil {
		return nil, err
	}
	return st.Conflicts, nil
}

// Conflict reads the base, ours and theirs stages of file.
func (r *Repo) Conflict(ctx context.Context, file string) (*Conflict, error) {
	c := &Conflict{File: file}
	c.Base, _ = r.git(ctx, "show", ":1:"+file)
	c.Ours, _ = r.git(ctx, "show", ":2:"+file)
	c.Theirs, _ = r.git(ctx, "show", ":3:"+file)
	if c.Ours == "" && c.Theirs == "" {
		return nil, fmt.Errorf("%s has no conflict stages", file)
	}
	return c, nil
}

// RebaseCommits returns the one-line summaries of onto..HEAD, newest first.
func (r *Repo) RebaseCommits(ctx context.Context, onto string) ([]string, error) {
	out, err := r.git(ctx, "log", "--oneline", onto+"..HEAD")
	if err != nil {
		return nil, err
	}
	return parseLines(out), nil
}

// Branches lists local branch names.
func (r *Repo) Branches(ctx context.Context) ([]string, error) {
	out, err := r.git(ctx, "branch", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	return parseLines(out), nil
}

// RemoteBranches lists remote-tracking branch names.
func (r *Repo) RemoteBranches(ctx context.Context) ([]string, error) {
	out, err := r.git(ctx, "branch", "-r", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	return parseLines(out), nil
}

// MergedBranches lists local branches merged into into, excluding into
// itself and the main and master branches.
func (r *Repo) MergedBranches(ctx context.Context, into string) ([]string, error) {
	out, err := r.git(ctx, "branch", "--merged", into, "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	var merged []string
	for _, b := range parseLines(out) {
		if b != into && b != "main" && b != "master" {
			merged = append(merged, b)
		}
	}
	return merged, nil
}

// CreateBranch creates name from HEAD and checks it out.
func (r *Repo) CreateBranch(ctx context.Context, name string) error {
	_, err := r.git(ctx, "checkout", "-b", name)
	return err
}

// DeleteBranch deletes a local branch. Without force git refuses to delete
// unmerged work.
func (r *Repo) DeleteBranch(ctx context.Context, name string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := r.git(ctx, "branch", flag, name)
	return err
}

// parseLines splits output into non-empty lines.
func parseLines(output string) []string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	result := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			result = append(result, line)
		}
	}

	return result
}
