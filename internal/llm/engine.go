// Package llm holds the inference capability alfred and alferd share: the
// Engine that owns a model, the Assistant prompts built on top of it, and
// the fallback wrapper that prefers a running daemon over local inference.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/leonletto/alfred/internal/safecmd"
)

// ErrModelNotLoaded is returned by Infer when LoadModel has not succeeded.
var ErrModelNotLoaded = errors.New("model not loaded")

// Engine owns at most one loaded model.
type Engine interface {
	// LoadModel loads the model. A second call after success is a no-op.
	LoadModel(ctx context.Context) error
	Loaded() bool
	Infer(ctx context.Context, prompt string, maxTokens uint32) (string, error)
}

// Sampling parameters passed to the runner.
const (
	contextSize = 2048
	temperature = "0.7"
	topK        = 40
	topP        = "0.9"
	seed        = 42
)

// CommandEngine runs a llama.cpp style runner executable against a model
// file. The runner must accept -m, -p, -n, -c, --temp, --top-k, --top-p,
// --seed and --no-display-prompt and print only the completion to stdout.
type CommandEngine struct {
	runner    string
	modelPath string

	mu     sync.Mutex
	loaded bool
	exe    string
}

// NewCommandEngine returns an engine for modelPath using the runner
// executable (a name resolved through $PATH or an absolute path).
func NewCommandEngine(runner, modelPath string) *CommandEngine {
	return &CommandEngine{runner: runner, modelPath: modelPath}
}

// ModelPath returns the model file this engine serves.
func (e *CommandEngine) ModelPath() string {
	return e.modelPath
}

// LoadModel checks that the model file and runner exist.
func (e *CommandEngine) LoadModel(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return nil
	}

	info, err := os.Stat(e.modelPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("model not found at %s\nset one with: alfred config --model <path>", e.modelPath)
		}
		return fmt.Errorf("stat model %s: %w", e.modelPath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("model path %s is a directory", e.modelPath)
	}

	exe, err := exec.LookPath(e.runner)
	if err != nil {
		return fmt.Errorf("inference runner %q not found: %w", e.runner, err)
	}

	e.exe = exe
	e.loaded = true
	return nil
}

// Loaded reports whether LoadModel has succeeded.
func (e *CommandEngine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// Infer runs the runner once and returns the trimmed completion. Only ctx
// bounds the run.
func (e *CommandEngine) Infer(ctx context.Context, prompt string, maxTokens uint32) (string, error) {
	e.mu.Lock()
	exe, loaded := e.exe, e.loaded
	e.mu.Unlock()
	if !loaded {
		return "", ErrModelNotLoaded
	}

	out, err := safecmd.Output(ctx, safecmd.Command{
		Name: exe,
		Args: []string{
			"-m", e.modelPath,
			"-p", prompt,
			"-n", strconv.FormatUint(uint64(maxTokens), 10),
			"-c", strconv.Itoa(contextSize),
			"--temp", temperature,
			"--top-k", strconv.Itoa(topK),
			"--top-p", topP,
			"--seed", strconv.Itoa(seed),
			"--no-display-prompt",
		},
	})
	if err != nil {
		return "", fmt.Errorf("inference: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
