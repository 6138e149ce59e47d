package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/leonletto/alfred/internal/gitctx"
	"github.com/leonletto/alfred/internal/llm"
)

// SanitizeBranchName lowercases name and replaces every character other
// than letters, digits, '/', '_' and '-' with '-'. Runs of '-' collapse and
// leading or trailing '-' are dropped.
func SanitizeBranchName(name string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '/' || r == '_' || r == '-'
		if !ok {
			r = '-'
		}
		if r == '-' {
			if lastDash {
				continue
			}
			lastDash = true
		} else {
			lastDash = false
		}
		b.WriteRune(r)
	}
	return strings.Trim(b.String(), "-")
}

// NewBranch creates and checks out a branch. An explicit name is used
// as given after sanitizing; otherwise the assistant names the branch from
// description.
func NewBranch(ctx context.Context, a llm.Assistant, repoDir, name, description string) (string, error) {
	repo, err := gitctx.Open(ctx, repoDir)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(name) == "" {
		if name, err = BranchName(ctx, a, description); err != nil {
			return "", err
		}
	}
	name = SanitizeBranchName(name)
	if name == "" {
		return "", errors.New("branch name is empty after sanitizing")
	}
	if err := repo.CreateBranch(ctx, name); err != nil {
		return "", err
	}
	return name, nil
}

// BranchList is the local and, optionally, remote branch listing.
type BranchList struct {
	Current string   `json:"current"`
	Local   []string `json:"local"`
	Remote  []string `json:"remote,omitempty"`
}

// ListBranches lists local branches, plus remote-tracking ones when
// remote is set.
func ListBranches(ctx context.Context, repoDir string, remote bool) (*BranchList, error) {
	repo, err := gitctx.Open(ctx, repoDir)
	if err != nil {
		return nil, err
	}
	st, err := repo.Status(ctx)
	if err != nil {
		return nil, err
	}
	list := &BranchList{Current: st.Branch}
	if list.Local, err = repo.Branches(ctx); err != nil {
		return nil, err
	}
	if remote {
		if list.Remote, err = repo.RemoteBranches(ctx); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// CleanResult reports what CleanBranches found and removed.
type CleanResult struct {
	Base    string   `json:"base"`
	Merged  []string `json:"merged"`
	Deleted []string `json:"deleted"`
	DryRun  bool     `json:"dry_run"`
}

// CleanBranches deletes local branches already merged into the base branch
// (main, else master, else the first local branch). The checked-out branch
// is never deleted. With dryRun nothing is removed.
func CleanBranches(ctx context.Context, repoDir string, dryRun bool) (*CleanResult, error) {
	repo, err := gitctx.Open(ctx, repoDir)
	if err != nil {
		return nil, err
	}
	st, err := repo.Status(ctx)
	if err != nil {
		return nil, err
	}
	branches, err := repo.Branches(ctx)
	if err != nil {
		return nil, err
	}
	base := baseBranch(branches)
	if base == "" {
		return nil, errors.New("repository has no branches")
	}

	merged, err := repo.MergedBranches(ctx, base)
	if err != nil {
		return nil, err
	}
	res := &CleanResult{Base: base, Merged: []string{}, Deleted: []string{}, DryRun: dryRun}
	for _, b := range merged {
		if b == st.Branch {
			continue
		}
		res.Merged = append(res.Merged, b)
		if dryRun {
			continue
		}
		if err := repo.DeleteBranch(ctx, b, false); err != nil {
			return res, err
		}
		res.Deleted = append(res.Deleted, b)
	}
	return res, nil
}

func baseBranch(branches []string) string {
	for _, want := range []string{"main", "master"} {
		for _, b := range branches {
			if b == want {
				return b
			}
		}
	}
	if len(branches) > 0 {
		return branches[0]
	}
	return ""
}
