package mcp

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingAssistant remembers its inputs and echoes them back.
type recordingAssistant struct {
	mu        sync.Mutex
	err       error
	diff      string
	commits   []string
	ours      string
	maxTokens uint32
}

func (a *recordingAssistant) Generate(_ context.Context, prompt string, maxTokens uint32) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.maxTokens = maxTokens
	return "gen:" + prompt, a.err
}

func (a *recordingAssistant) CommitMessage(_ context.Context, diff string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.diff = diff
	return "feat: change", a.err
}

func (a *recordingAssistant) BranchName(_ context.Context, description string) (string, error) {
	return "feature/" + description, a.err
}

func (a *recordingAssistant) ConflictResolution(_ context.Context, file, ours, _, _ string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ours = ours
	return "merged " + file, a.err
}

func (a *recordingAssistant) RebaseStrategy(_ context.Context, commits []string, onto string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.commits = commits
	return "squash onto " + onto, a.err
}

func TestHandleBranchName(t *testing.T) {
	s := NewServer(&recordingAssistant{})

	_, out, err := s.handleBranchName(context.Background(), nil, BranchNameInput{Description: "login"})
	require.NoError(t, err)
	assert.Equal(t, "feature/login", out.Text)

	_, _, err = s.handleBranchName(context.Background(), nil, BranchNameInput{Description: "  "})
	assert.EqualError(t, err, "'description' is required")
}

func TestHandleCommitMessage_ExplicitDiff(t *testing.T) {
	a := &recordingAssistant{}
	s := NewServer(a)

	_, out, err := s.handleCommitMessage(context.Background(), nil, CommitMessageInput{Diff: "+x"})
	require.NoError(t, err)
	assert.Equal(t, "feat: change", out.Text)
	assert.Equal(t, "+x", a.diff)
}

func TestHandleCommitMessage_NoDiffNoRepo(t *testing.T) {
	s := NewServer(&recordingAssistant{})

	_, _, err := s.handleCommitMessage(context.Background(), nil, CommitMessageInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'diff' is required")
}

func TestHandleGenerate_DefaultTokens(t *testing.T) {
	a := &recordingAssistant{}
	s := NewServer(a)

	_, out, err := s.handleGenerate(context.Background(), nil, GenerateInput{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "gen:hi", out.Text)
	assert.Equal(t, uint32(256), a.maxTokens)

	_, _, err = s.handleGenerate(context.Background(), nil, GenerateInput{Prompt: "hi", MaxTokens: 12})
	require.NoError(t, err)
	assert.Equal(t, uint32(12), a.maxTokens)

	_, _, err = s.handleGenerate(context.Background(), nil, GenerateInput{})
	assert.EqualError(t, err, "'prompt' is required")
}

func TestHandleConflict_Explicit(t *testing.T) {
	a := &recordingAssistant{}
	s := NewServer(a)

	_, out, err := s.handleConflictResolution(context.Background(), nil,
		ConflictInput{File: "a.go", Ours: "1", Theirs: "2"})
	require.NoError(t, err)
	assert.Equal(t, "merged a.go", out.Text)
	assert.Equal(t, "1", a.ours)

	_, _, err = s.handleConflictResolution(context.Background(), nil, ConflictInput{})
	assert.EqualError(t, err, "'file' is required")
}

func TestHandleRebase_Explicit(t *testing.T) {
	a := &recordingAssistant{}
	s := NewServer(a)

	_, out, err := s.handleRebaseStrategy(context.Background(), nil,
		RebaseInput{Commits: []string{"abc one"}, Onto: "main"})
	require.NoError(t, err)
	assert.Equal(t, "squash onto main", out.Text)

	_, _, err = s.handleRebaseStrategy(context.Background(), nil, RebaseInput{Commits: []string{"x"}})
	assert.EqualError(t, err, "'onto' is required")
}

func TestAssistantErrorSurfaced(t *testing.T) {
	s := NewServer(&recordingAssistant{err: errors.New("daemon error: no model")})

	_, _, err := s.handleBranchName(context.Background(), nil, BranchNameInput{Description: "x"})
	require.Error(t, err)
	assert.Equal(t, "suggest_branch_name: daemon error: no model", err.Error())
}

func git(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %s: %s", strings.Join(args, " "), out)
}

func TestHandlersReadRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	git(t, dir, "init")
	git(t, dir, "config", "user.name", "Test User")
	git(t, dir, "config", "user.email", "test@example.com")
	git(t, dir, "config", "commit.gpgsign", "false")
	git(t, dir, "checkout", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a\n"), 0o600))
	git(t, dir, "add", "a.txt")
	git(t, dir, "commit", "-m", "first")

	git(t, dir, "checkout", "-b", "feature")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b\n"), 0o600))
	git(t, dir, "add", "b.txt")
	git(t, dir, "commit", "-m", "second")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.txt"), []byte("staged line\n"), 0o600))
	git(t, dir, "add", "c.txt")

	a := &recordingAssistant{}
	s := NewServer(a, WithRepo(dir))

	_, _, err := s.handleCommitMessage(context.Background(), nil, CommitMessageInput{})
	require.NoError(t, err)
	assert.Contains(t, a.diff, "+staged line")

	_, _, err = s.handleRebaseStrategy(context.Background(), nil, RebaseInput{Onto: "main"})
	require.NoError(t, err)
	require.Len(t, a.commits, 1)
	assert.True(t, strings.HasSuffix(a.commits[0], " second"))

	_, _, err = s.handleRebaseStrategy(context.Background(), nil, RebaseInput{Onto: "feature"})
	assert.ErrorContains(t, err, "no commits between feature and HEAD")
}
