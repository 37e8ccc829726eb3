package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"autoforge/internal/browser"
	"autoforge/internal/feature"
	"autoforge/internal/progress"
	"autoforge/internal/vcs"
)

// Model is the language-model channel: prompt in, text out.
type Model interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Validator runs ordered natural-language steps against the live app.
type Validator interface {
	Run(ctx context.Context, steps []string) (browser.Result, error)
	Smoke(ctx context.Context) (browser.Result, error)
}

// Repository is the version-control surface a session needs.
type Repository interface {
	RecentCommits(ctx context.Context, n int) ([]vcs.Commit, error)
	Diff(ctx context.Context, path string) (string, error)
	CommitFeature(ctx context.Context, name, description string) (string, error)
}

// Deps collects everything a session operates on. The store and ledger
// are shared with the scheduler; the rest are external collaborators.
type Deps struct {
	Root      string
	Store     *feature.Store
	Ledger    *progress.Ledger
	Model     Model
	Validator Validator
	Repo      Repository
	Log       *zap.Logger
}

// Result is the outcome of one session.
type Result struct {
	SessionID string
	Success   bool
	FeatureID string
	// AllComplete is set when no incomplete feature remained. The session
	// still counts as successful but advanced nothing.
	AllComplete bool
	Reason      string
}

// Session is one attempt at advancing exactly one feature. It is transient:
// create one per attempt, run it, discard it.
type Session struct {
	id   string
	deps Deps
	log  *zap.Logger
}

// NewSession creates a session with a fresh id.
func NewSession(deps Deps) *Session {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	id := "coding_" + uuid.NewString()[:8]
	return &Session{id: id, deps: deps, log: log.With(zap.String("session", id))}
}

func (s *Session) ID() string { return s.id }

// Run executes the session. It never panics outward: any failure inside is
// recorded in the ledger and reported through the result.
func (s *Session) Run(ctx context.Context) (res Result) {
	res = Result{SessionID: s.id}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("session panicked", zap.Any("panic", r))
			s.deps.Ledger.Error(fmt.Sprintf("session panic: %v", r), "session "+s.id)
			s.deps.Ledger.SessionEnd(s.id, "aborted by internal error", 0)
			res = Result{SessionID: s.id, Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()

	s.deps.Ledger.SessionStart(s.id, "coding")

	state := s.projectState(ctx)

	// Advisory smoke check. A dead dev server is worth a warning but the
	// session proceeds regardless.
	if smoke, err := s.deps.Validator.Smoke(ctx); err != nil || !smoke.Success {
		s.log.Warn("smoke check failed", zap.Error(err))
		s.deps.Ledger.Append("SMOKE CHECK FAILED", "continuing anyway")
	}

	feat, ok := s.deps.Store.NextIncomplete()
	if !ok {
		s.log.Info("no incomplete features remain")
		s.deps.Ledger.Append("ALL FEATURES COMPLETE", "nothing left to implement")
		s.deps.Ledger.SessionEnd(s.id, "all features complete", 0)
		res.Success = true
		res.AllComplete = true
		return res
	}
	res.FeatureID = feat.ID
	s.deps.Ledger.FeatureStart(feat.ID, feat.Description)

	written, err := s.implement(ctx, state, feat)
	if err != nil {
		s.fail(feat, "implementation produced no files: "+err.Error())
		res.Reason = err.Error()
		return res
	}
	for _, path := range written {
		s.deps.Ledger.CodeChange(path, "write", "generated for "+feat.ID)
	}

	validation, err := s.deps.Validator.Run(ctx, feat.Steps)
	if err != nil {
		// A broken browser counts as a failed test run for the feature.
		validation = browser.Result{Success: false, Output: "validation error: " + err.Error()}
	}
	s.deps.Ledger.TestResult(feat.ID, validation.Success, validation.Output)

	if !validation.Success {
		if err := s.deps.Store.MarkFailed(feat.ID, "Tests failed"); err != nil {
			s.log.Error("failed to persist feature failure", zap.Error(err))
		}
		s.deps.Ledger.FeatureComplete(feat.ID, false, "Tests failed")
		s.deps.Ledger.SessionEnd(s.id, "feature "+feat.ID+" failed validation", 0)
		res.Reason = "Tests failed"
		return res
	}

	if err := s.deps.Store.MarkComplete(feat.ID, ""); err != nil {
		// A store write failure corrupts the work queue if ignored.
		s.log.Error("failed to persist feature completion", zap.Error(err))
		s.deps.Ledger.Error("store write failed: "+err.Error(), "marking "+feat.ID+" complete")
		s.deps.Ledger.SessionEnd(s.id, "store write failure", 0)
		res.Reason = err.Error()
		return res
	}
	s.deps.Ledger.FeatureComplete(feat.ID, true, "")

	s.commit(ctx, feat)

	s.deps.Ledger.SessionEnd(s.id, "completed "+feat.ID, 1)
	res.Success = true
	return res
}

// implement asks the model for code and writes the parsed file blocks.
func (s *Session) implement(ctx context.Context, state string, feat feature.Feature) ([]string, error) {
	prompt := implementationPrompt(state, feat)
	reply, err := s.deps.Model.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("model request: %w", err)
	}

	// Prose ahead of the first file block is usually the model explaining
	// its approach. Keep it in the audit trail.
	if preamble := strings.TrimSpace(strings.SplitN(reply, "FILE:", 2)[0]); preamble != "" {
		s.deps.Ledger.Thinking(truncateText(preamble, 500))
	}

	written, err := ApplyResponse(s.deps.Root, reply, s.log)
	if err != nil {
		return nil, err
	}
	if len(written) == 0 {
		return nil, fmt.Errorf("response parsed but no files written")
	}
	return written, nil
}

// projectState condenses repo history, ledger tail, queue summary and the
// working-tree diff into the context block fed to the model. Every part is
// best-effort: a missing repo just means a thinner prompt.
func (s *Session) projectState(ctx context.Context) string {
	var b strings.Builder

	if commits, err := s.deps.Repo.RecentCommits(ctx, 5); err == nil && len(commits) > 0 {
		b.WriteString("Recent commits:\n")
		for _, c := range commits {
			fmt.Fprintf(&b, "  %s %s\n", shortHash(c.Hash), c.Message)
		}
	}

	if tail := s.deps.Ledger.Tail(20); tail != "" {
		b.WriteString("\nRecent progress:\n")
		b.WriteString(tail)
	}

	sum := s.deps.Store.Summary()
	fmt.Fprintf(&b, "\nFeature progress: %d/%d complete (%.1f%%), %d pending\n",
		sum.Completed, sum.Total, sum.Percentage, sum.Pending)

	if diff, err := s.deps.Repo.Diff(ctx, ""); err == nil && diff != "" {
		b.WriteString("\nUncommitted changes:\n")
		b.WriteString(truncateText(diff, 2000))
	}

	return b.String()
}

func (s *Session) fail(feat feature.Feature, reason string) {
	s.log.Warn("session failed", zap.String("feature", feat.ID), zap.String("reason", reason))
	s.deps.Ledger.Error(reason, "feature "+feat.ID)
	s.deps.Ledger.SessionEnd(s.id, "feature "+feat.ID+" attempt failed", 0)
}

// commit records the completed feature in version control. Commit problems
// are logged but do not undo a completed feature.
func (s *Session) commit(ctx context.Context, feat feature.Feature) {
	hash, err := s.deps.Repo.CommitFeature(ctx, feat.ID, feat.Description)
	if err != nil {
		s.log.Warn("commit failed", zap.Error(err))
		s.deps.Ledger.Error("commit failed: "+err.Error(), "feature "+feat.ID)
		return
	}
	if hash != "" {
		s.deps.Ledger.GitCommit(hash, "[Feature] "+feat.ID+" PASS")
	}
}

// RunLoop runs sessions back to back until the queue drains, an iteration
// cap is hit, or the context is cancelled. It returns the number of
// features completed. Each iteration reloads the store so edits made by an
// operator between sessions are picked up.
func RunLoop(ctx context.Context, deps Deps, maxIterations int, delay time.Duration) (int, error) {
	completed := 0
	for i := 0; i < maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return completed, err
		}
		if err := deps.Store.Reload(); err != nil {
			return completed, fmt.Errorf("reload feature store: %w", err)
		}
		if deps.Store.Summary().Pending == 0 {
			return completed, nil
		}

		res := NewSession(deps).Run(ctx)
		if res.Success && !res.AllComplete {
			completed++
		}
		if res.AllComplete {
			return completed, nil
		}

		select {
		case <-ctx.Done():
			return completed, ctx.Err()
		case <-time.After(delay):
		}
	}
	return completed, nil
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
