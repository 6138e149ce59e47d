package llm

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrUnavailable marks connection-level failures of a remote Assistant.
// Only errors wrapping it trigger the local fallback; anything else the
// remote side reports is returned to the caller as is.
var ErrUnavailable = errors.New("assistant backend unavailable")

// Connector dials a remote Assistant for one call.
type Connector func(ctx context.Context) (Assistant, error)

// FallbackOption configures WithDaemonFallback.
type FallbackOption func(*fallback)

// WithAutoStart registers start, called at most once when the daemon is
// found unreachable. The current call is still served locally.
func WithAutoStart(start func(ctx context.Context) error) FallbackOption {
	return func(f *fallback) { f.autoStart = start }
}

// WithLogger sets the logger used to report fallbacks.
func WithLogger(logger *zap.Logger) FallbackOption {
	return func(f *fallback) { f.logger = logger }
}

// WithDaemonFallback returns an Assistant that sends each call to the
// daemon reached through connect and falls back to local when the daemon
// is unavailable.
func WithDaemonFallback(connect Connector, local Assistant, opts ...FallbackOption) Assistant {
	f := &fallback{connect: connect, local: local, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type fallback struct {
	connect   Connector
	local     Assistant
	autoStart func(ctx context.Context) error
	logger    *zap.Logger

	startOnce sync.Once
}

// call runs fn against the daemon, or against local when the daemon
// cannot be reached.
func (f *fallback) call(ctx context.Context, method string, fn func(Assistant) (string, error)) (string, error) {
	remote, err := f.connect(ctx)
	if err == nil {
		var out string
		out, err = fn(remote)
		if err == nil {
			return out, nil
		}
	}
	if !errors.Is(err, ErrUnavailable) {
		return "", err
	}

	f.logger.Debug("daemon unavailable, using local model",
		zap.String("method", method),
		zap.Error(err),
	)
	if f.autoStart != nil {
		f.startOnce.Do(func() {
			if err := f.autoStart(ctx); err != nil {
				f.logger.Warn("auto-start of daemon failed", zap.Error(err))
			}
		})
	}
	return fn(f.local)
}

func (f *fallback) Generate(ctx context.Context, prompt string, maxTokens uint32) (string, error) {
	return f.call(ctx, "generate", func(a Assistant) (string, error) {
		return a.Generate(ctx, prompt, maxTokens)
	})
}

func (f *fallback) CommitMessage(ctx context.Context, diff string) (string, error) {
	return f.call(ctx, "generate_commit_message", func(a Assistant) (string, error) {
		return a.CommitMessage(ctx, diff)
	})
}

func (f *fallback) BranchName(ctx context.Context, description string) (string, error) {
	return f.call(ctx, "suggest_branch_name", func(a Assistant) (string, error) {
		return a.BranchName(ctx, description)
	})
}

func (f *fallback) ConflictResolution(ctx context.Context, file, ours, theirs, base string) (string, error) {
	return f.call(ctx, "suggest_conflict_resolution", func(a Assistant) (string, error) {
		return a.ConflictResolution(ctx, file, ours, theirs, base)
	})
}

func (f *fallback) RebaseStrategy(ctx context.Context, commits []string, onto string) (string, error) {
	return f.call(ctx, "suggest_rebase_strategy", func(a Assistant) (string, error) {
		return a.RebaseStrategy(ctx, commits, onto)
	})
}
