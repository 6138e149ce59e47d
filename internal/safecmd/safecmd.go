// Package safecmd runs external commands with bounded run time.
// Every git, launchctl, systemctl and runner invocation goes through here
// instead of calling exec.Command directly.
package safecmd

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// GitTimeout bounds local git queries.
const GitTimeout = 5 * time.Second

// ServiceTimeout bounds service manager calls (launchctl, systemctl).
const ServiceTimeout = 10 * time.Second

// Command describes one invocation.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Stdin   []byte
	Timeout time.Duration // <= 0 means only ctx bounds the run
}

// Output runs c and returns its stdout. On failure the error carries the
// trimmed stderr.
func Output(ctx context.Context, c Command) ([]byte, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, c.Name, c.Args...) //nolint:gosec // G204 - callers pass fixed executables
	cmd.Dir = c.Dir
	if c.Stdin != nil {
		cmd.Stdin = bytes.NewReader(c.Stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, fmt.Errorf("%s %v: %w", c.Name, c.Args, ctxErr)
		}
		return out, fmt.Errorf("%s %v: %w (stderr: %s)", c.Name, c.Args, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Run runs name with args under timeout and returns combined output.
func Run(ctx context.Context, timeout time.Duration, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // G204 - callers pass fixed executables
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %v: %w (output: %s)", name, args, err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// Git runs a git command in dir with GitTimeout and returns stdout.
func Git(ctx context.Context, dir string, args ...string) ([]byte, error) {
	return Output(ctx, Command{Name: "git", Args: args, Dir: dir, Timeout: GitTimeout})
}
