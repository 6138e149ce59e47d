package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Assistant produces the text behind every alfred command.
type Assistant interface {
	Generate(ctx context.Context, prompt string, maxTokens uint32) (string, error)
	CommitMessage(ctx context.Context, diff string) (string, error)
	BranchName(ctx context.Context, description string) (string, error)
	ConflictResolution(ctx context.Context, file, ours, theirs, base string) (string, error)
	RebaseStrategy(ctx context.Context, commits []string, onto string) (string, error)
}

// Input and output budgets.
const (
	maxDiffBytes     = 4000
	maxConflictBytes = 2000

	commitTokens   = 100
	branchTokens   = 30
	conflictTokens = 500
	rebaseTokens   = 200
)

const commitPrompt = `<|system|>
You are a helpful assistant that generates concise, conventional git commit messages.
Follow the conventional commits format: type(scope): description
Types: feat, fix, docs, style, refactor, test, chore
Keep the first line under 72 characters.
Only output the commit message, nothing else.<|end|>
<|user|>
Generate a commit message for this diff:

%s<|end|>
<|assistant|>`

const conflictPrompt = `<|system|>
You are a helpful assistant that resolves git merge conflicts.
Analyze the conflict and provide a merged result that preserves the intent of both changes.
Only output the resolved code, no explanations.<|end|>
<|user|>
Resolve this merge conflict in %s:

BASE (original):
%s

OURS (current branch):
%s

THEIRS (incoming branch):
%s

Provide the merged result:<|end|>
<|assistant|>`

const rebasePrompt = `<|system|>
You are a helpful assistant that suggests git rebase strategies.
Analyze the commits and suggest which ones to squash, reorder, or reword.
Be concise and provide actionable suggestions.<|end|>
<|user|>
I'm rebasing these commits onto %s:

%s

Suggest a rebase strategy (squash, reorder, reword):<|end|>
<|assistant|>`

const branchPrompt = `<|system|>
You are a helpful assistant that suggests git branch names.
Follow conventions: feature/, bugfix/, hotfix/, chore/
Use kebab-case, keep it short but descriptive.
Only output the branch name, nothing else.<|end|>
<|user|>
Suggest a branch name for: %s<|end|>
<|assistant|>`

// Local answers every request with an in-process Engine. It loads the model
// on first use.
type Local struct {
	engine Engine
}

// NewLocal returns an Assistant backed by engine.
func NewLocal(engine Engine) *Local {
	return &Local{engine: engine}
}

// Engine returns the underlying engine.
func (l *Local) Engine() Engine {
	return l.engine
}

// Generate runs a raw prompt.
func (l *Local) Generate(ctx context.Context, prompt string, maxTokens uint32) (string, error) {
	if !l.engine.Loaded() {
		if err := l.engine.LoadModel(ctx); err != nil {
			return "", err
		}
	}
	out, err := l.engine.Infer(ctx, prompt, maxTokens)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CommitMessage returns the first line the model produces for diff.
func (l *Local) CommitMessage(ctx context.Context, diff string) (string, error) {
	out, err := l.Generate(ctx, fmt.Sprintf(commitPrompt, truncate(diff, maxDiffBytes)), commitTokens)
	if err != nil {
		return "", err
	}
	return firstLine(out), nil
}

// BranchName returns a single branch name stripped of quoting.
func (l *Local) BranchName(ctx context.Context, description string) (string, error) {
	out, err := l.Generate(ctx, fmt.Sprintf(branchPrompt, description), branchTokens)
	if err != nil {
		return "", err
	}
	return strings.Trim(firstLine(out), "\"'`"), nil
}

// ConflictResolution proposes merged content for one conflicted file.
func (l *Local) ConflictResolution(ctx context.Context, file, ours, theirs, base string) (string, error) {
	prompt := fmt.Sprintf(conflictPrompt,
		file,
		truncate(base, maxConflictBytes),
		truncate(ours, maxConflictBytes),
		truncate(theirs, maxConflictBytes),
	)
	return l.Generate(ctx, prompt, conflictTokens)
}

// RebaseStrategy suggests how to rebase commits onto a target.
func (l *Local) RebaseStrategy(ctx context.Context, commits []string, onto string) (string, error) {
	return l.Generate(ctx, fmt.Sprintf(rebasePrompt, onto, strings.Join(commits, "\n")), rebaseTokens)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
