package cli

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// setupGitRepo creates a repository with one commit on main.
func setupGitRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	runGit(t, dir, "init")
	runGit(t, dir, "config", "user.name", "Test User")
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "commit.gpgsign", "false")
	runGit(t, dir, "checkout", "-b", "main")
	writeFile(t, dir, "a.txt", "base\n")
	runGit(t, dir, "add", "a.txt")
	runGit(t, dir, "commit", "-m", "initial")
	return dir
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestCommitMessageFromFileAndStdin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "change.diff")
	if err := os.WriteFile(path, []byte("+added\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := CommitMessage(context.Background(), cannedAssistant{}, DiffSource{File: path})
	if err != nil || got != "daemon: commit" {
		t.Errorf("file diff = %q, %v", got, err)
	}

	got, err = CommitMessage(context.Background(), cannedAssistant{},
		DiffSource{File: "-", Stdin: strings.NewReader("+x\n")})
	if err != nil || got != "daemon: commit" {
		t.Errorf("stdin diff = %q, %v", got, err)
	}

	_, err = CommitMessage(context.Background(), cannedAssistant{},
		DiffSource{File: "-", Stdin: strings.NewReader("  \n")})
	if !errors.Is(err, ErrNoStagedChanges) {
		t.Errorf("empty diff err = %v, want ErrNoStagedChanges", err)
	}
}

func TestCommitMessageStagedDiff(t *testing.T) {
	dir := setupGitRepo(t)

	_, err := CommitMessage(context.Background(), cannedAssistant{}, DiffSource{Repo: dir})
	if !errors.Is(err, ErrNoStagedChanges) {
		t.Fatalf("nothing staged err = %v", err)
	}

	writeFile(t, dir, "b.txt", "new\n")
	runGit(t, dir, "add", "b.txt")
	got, err := CommitMessage(context.Background(), cannedAssistant{}, DiffSource{Repo: dir})
	if err != nil || got != "daemon: commit" {
		t.Errorf("staged diff = %q, %v", got, err)
	}
}

func TestBranchNameRequiresDescription(t *testing.T) {
	if _, err := BranchName(context.Background(), cannedAssistant{}, "   "); err == nil {
		t.Error("expected error for empty description")
	}
	got, err := BranchName(context.Background(), cannedAssistant{}, " login page ")
	if err != nil || got != "daemon/login page" {
		t.Errorf("BranchName = %q, %v", got, err)
	}
}

func TestResolveConflicts(t *testing.T) {
	dir := setupGitRepo(t)

	if _, err := ResolveConflicts(context.Background(), cannedAssistant{}, dir, ""); !errors.Is(err, ErrNoConflicts) {
		t.Fatalf("clean repo err = %v, want ErrNoConflicts", err)
	}

	runGit(t, dir, "checkout", "-b", "other")
	writeFile(t, dir, "a.txt", "theirs\n")
	runGit(t, dir, "commit", "-am", "theirs")
	runGit(t, dir, "checkout", "main")
	writeFile(t, dir, "a.txt", "ours\n")
	runGit(t, dir, "commit", "-am", "ours")

	cmd := exec.Command("git", "merge", "other")
	cmd.Dir = dir
	if err := cmd.Run(); err == nil {
		t.Fatal("expected merge conflict")
	}

	res, err := ResolveConflicts(context.Background(), cannedAssistant{}, dir, "")
	if err != nil {
		t.Fatalf("ResolveConflicts: %v", err)
	}
	if len(res) != 1 || res[0].File != "a.txt" || res[0].Suggestion != "daemon resolved a.txt" {
		t.Errorf("resolutions = %+v", res)
	}
}

func TestRebasePlan(t *testing.T) {
	dir := setupGitRepo(t)
	runGit(t, dir, "checkout", "-b", "feature")
	writeFile(t, dir, "b.txt", "b\n")
	runGit(t, dir, "add", "b.txt")
	runGit(t, dir, "commit", "-m", "add b")

	plan, commits, err := RebasePlan(context.Background(), cannedAssistant{}, dir, "main")
	if err != nil {
		t.Fatalf("RebasePlan: %v", err)
	}
	if plan != "daemon rebase main" || len(commits) != 1 || !strings.HasSuffix(commits[0], " add b") {
		t.Errorf("plan %q commits %v", plan, commits)
	}

	if _, _, err := RebasePlan(context.Background(), cannedAssistant{}, dir, "feature"); err == nil {
		t.Error("expected error with no commits to rebase")
	}
}
