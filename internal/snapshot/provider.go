// Package snapshot captures repository state before and after delegated
// work so the delegation workflow can report which files changed. The
// git implementation is non-destructive: it records stash commits without
// touching the working tree.
package snapshot

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"conductor/internal/logging"
)

// Provider captures an opaque snapshot id and diffs two snapshots.
type Provider interface {
	// Snapshot records the current repository state and returns an
	// opaque identifier for it.
	Snapshot(ctx context.Context, label string) (string, error)
	// Diff returns the paths of files that differ between two snapshots.
	Diff(ctx context.Context, a, b string) ([]string, error)
}

// Runner executes a git command in the repository and returns its
// trimmed combined output.
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// ExecRunner implements Runner using exec.CommandContext.
type ExecRunner struct {
	repoPath string
}

// NewRunner creates a git runner for the repository at the given path.
func NewRunner(repoPath string) *ExecRunner {
	return &ExecRunner{repoPath: repoPath}
}

func (r *ExecRunner) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.repoPath
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// Git implements Provider against a git repository. Snapshots are stash
// commits created with `git stash create`, which leaves the working tree
// and the stash reflog untouched. A clean tree has nothing to stash, so
// the snapshot falls back to the HEAD commit.
type Git struct {
	runner Runner
}

// NewGit creates a git-backed provider over the given runner.
func NewGit(runner Runner) *Git {
	return &Git{runner: runner}
}

func (g *Git) Snapshot(ctx context.Context, label string) (string, error) {
	out, err := g.runner.Run(ctx, "stash", "create", label)
	if err != nil {
		return "", fmt.Errorf("snapshot %q: %w", label, err)
	}
	if out == "" {
		// Clean working tree; HEAD already is the snapshot.
		out, err = g.runner.Run(ctx, "rev-parse", "HEAD")
		if err != nil {
			return "", fmt.Errorf("snapshot %q: %w", label, err)
		}
	}
	logging.SnapshotDebug("captured %s (%s)", short(out), label)
	return out, nil
}

func (g *Git) Diff(ctx context.Context, a, b string) ([]string, error) {
	if a == "" || b == "" {
		return nil, fmt.Errorf("diff requires two snapshot ids")
	}
	if a == b {
		return nil, nil
	}
	out, err := g.runner.Run(ctx, "diff", "--name-only", a, b)
	if err != nil {
		return nil, fmt.Errorf("diff %s..%s: %w", short(a), short(b), err)
	}
	if out == "" {
		return nil, nil
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	logging.SnapshotDebug("diff %s..%s: %d file(s)", short(a), short(b), len(files))
	return files, nil
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
