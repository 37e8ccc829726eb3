// Package vcs wraps the git CLI for the small set of operations the agent
// needs: init, stage, commit, status, log, and diff. Every call is bounded
// by the caller's context.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Commit is one entry from the repository log.
type Commit struct {
	Hash    string `json:"hash"`
	Message string `json:"message"`
	Author  string `json:"author"`
	Date    string `json:"date"`
}

// Git manages the repository at a single project root.
type Git struct {
	root string
	log  *zap.Logger
}

// New creates a Git manager for the given project root.
func New(root string, log *zap.Logger) *Git {
	if log == nil {
		log = zap.NewNop()
	}
	return &Git{root: root, log: log}
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("git %s: %w", args[0], ctx.Err())
		}
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// IsRepo reports whether the project root is already a git repository.
func (g *Git) IsRepo() bool {
	info, err := os.Stat(filepath.Join(g.root, ".git"))
	return err == nil && info.IsDir()
}

// Init initializes a repository. Idempotent: an existing repo is left alone.
func (g *Git) Init(ctx context.Context) error {
	if g.IsRepo() {
		g.log.Info("git repository already exists")
		return nil
	}
	if _, err := g.run(ctx, "init"); err != nil {
		return err
	}
	g.log.Info("git repository initialized", zap.String("root", g.root))
	return nil
}

// CurrentBranch returns the checked-out branch name.
func (g *Git) CurrentBranch(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "branch", "--show-current")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Add stages the given paths.
func (g *Git) Add(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add"}, paths...)
	if _, err := g.run(ctx, args...); err != nil {
		return err
	}
	return nil
}

// Commit creates a commit with the given message.
func (g *Git) Commit(ctx context.Context, message string) error {
	if _, err := g.run(ctx, "commit", "-m", message); err != nil {
		return err
	}
	g.log.Info("committed", zap.String("message", firstLine(message)))
	return nil
}

// HeadHash returns the full hash of HEAD.
func (g *Git) HeadHash(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Status parses porcelain output into modified, untracked, and staged paths.
func (g *Git) Status(ctx context.Context) (modified, untracked, staged []string, err error) {
	out, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return nil, nil, nil, err
	}
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		code := line[:2]
		path := line[3:]
		switch {
		case strings.HasPrefix(code, "??"):
			untracked = append(untracked, path)
		case code == " M" || code == "M " || code == "MM":
			modified = append(modified, path)
		case strings.HasPrefix(code, "A"):
			staged = append(staged, path)
		}
	}
	return modified, untracked, staged, nil
}

// RecentCommits returns up to n commits from the log, newest first.
// An empty repository yields an empty slice, not an error.
func (g *Git) RecentCommits(ctx context.Context, n int) ([]Commit, error) {
	out, err := g.run(ctx, "log", fmt.Sprintf("-%d", n), "--pretty=format:%H|%s|%an|%ad", "--date=iso")
	if err != nil {
		// A repo with no commits fails `git log`; treat it as empty history.
		if strings.Contains(err.Error(), "does not have any commits") {
			return nil, nil
		}
		return nil, err
	}

	var commits []Commit
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 4)
		if len(parts) != 4 {
			continue
		}
		commits = append(commits, Commit{
			Hash:    parts[0],
			Message: parts[1],
			Author:  parts[2],
			Date:    parts[3],
		})
	}
	return commits, nil
}

// Diff returns the working-tree diff, optionally scoped to one path.
func (g *Git) Diff(ctx context.Context, path string) (string, error) {
	args := []string{"diff"}
	if path != "" {
		args = append(args, path)
	}
	return g.run(ctx, args...)
}

// CommitFeature stages every pending change and commits it with a message
// scoped to the named feature. Returns the new commit hash, or empty when
// there was nothing to commit.
func (g *Git) CommitFeature(ctx context.Context, name, description string) (string, error) {
	modified, untracked, staged, err := g.Status(ctx)
	if err != nil {
		return "", err
	}
	pending := append(modified, untracked...)
	if len(pending) == 0 && len(staged) == 0 {
		g.log.Info("no changes to commit")
		return "", nil
	}
	if err := g.Add(ctx, pending); err != nil {
		return "", err
	}

	message := fmt.Sprintf("[Feature] %s\n\n%s\n\nTest: PASSED\nTimestamp: %s",
		name, description, time.Now().Format("2006-01-02 15:04:05"))
	if err := g.Commit(ctx, message); err != nil {
		return "", err
	}
	return g.HeadHash(ctx)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
