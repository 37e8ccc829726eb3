package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"autoforge/internal/browser"
	"autoforge/internal/feature"
	"autoforge/internal/progress"
	"autoforge/internal/vcs"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeModel struct {
	reply   string
	err     error
	prompts []string
}

func (m *fakeModel) Complete(_ context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	return m.reply, m.err
}

type panicModel struct{}

func (panicModel) Complete(context.Context, string) (string, error) {
	panic("model exploded")
}

type fakeValidator struct {
	result browser.Result
	err    error
	runs   [][]string
}

func (v *fakeValidator) Run(_ context.Context, steps []string) (browser.Result, error) {
	v.runs = append(v.runs, steps)
	return v.result, v.err
}

func (v *fakeValidator) Smoke(context.Context) (browser.Result, error) {
	return browser.Result{Success: true}, nil
}

type fakeRepo struct {
	commits []string
}

func (r *fakeRepo) RecentCommits(context.Context, int) ([]vcs.Commit, error) {
	return []vcs.Commit{{Hash: "0123456789abcdef", Message: "previous work"}}, nil
}

func (r *fakeRepo) Diff(context.Context, string) (string, error) { return "", nil }

func (r *fakeRepo) CommitFeature(_ context.Context, name, _ string) (string, error) {
	r.commits = append(r.commits, name)
	return "fedcba9876543210", nil
}

func newDeps(t *testing.T) (Deps, *fakeModel, *fakeValidator, *fakeRepo) {
	t.Helper()
	root := t.TempDir()
	store, err := feature.Open(filepath.Join(root, "feature_list.json"), zap.NewNop())
	require.NoError(t, err)

	model := &fakeModel{}
	validator := &fakeValidator{result: browser.Result{Success: true, Output: "All steps passed"}}
	repo := &fakeRepo{}
	return Deps{
		Root:      root,
		Store:     store,
		Ledger:    progress.New(filepath.Join(root, "progress.txt"), zap.NewNop()),
		Model:     model,
		Validator: validator,
		Repo:      repo,
		Log:       zap.NewNop(),
	}, model, validator, repo
}

func ledgerText(t *testing.T, deps Deps) string {
	t.Helper()
	data, err := os.ReadFile(deps.Ledger.Path())
	require.NoError(t, err)
	return string(data)
}

func TestSession_CompletesFeature(t *testing.T) {
	deps, model, validator, repo := newDeps(t)
	feat, err := deps.Store.Add("Homepage loads", []string{"Navigate to /", "Verify body"}, "functional", 1)
	require.NoError(t, err)

	model.reply = "I will create a minimal homepage.\n\nFILE: index.html\nCONTENT:\n<html></html>"

	res := NewSession(deps).Run(context.Background())
	require.True(t, res.Success)
	require.Equal(t, feat.ID, res.FeatureID)
	require.False(t, res.AllComplete)

	got, ok := deps.Store.Get(feat.ID)
	require.True(t, ok)
	require.True(t, got.Passes)

	require.Equal(t, [][]string{{"Navigate to /", "Verify body"}}, validator.runs)
	require.Equal(t, []string{feat.ID}, repo.commits)

	data, err := os.ReadFile(filepath.Join(deps.Root, "index.html"))
	require.NoError(t, err)
	require.Equal(t, "<html></html>", string(data))

	text := ledgerText(t, deps)
	require.Contains(t, text, "COMPLETED FEATURE")
	require.Contains(t, text, "fedcba98")
	require.Contains(t, text, "THINKING")
}

func TestSession_ValidationFailure(t *testing.T) {
	deps, model, validator, repo := newDeps(t)
	feat, err := deps.Store.Add("Broken thing", []string{"Verify .missing"}, "functional", 1)
	require.NoError(t, err)

	model.reply = "FILE: broken.js\nCONTENT:\nwhoops"
	validator.result = browser.Result{Success: false, Output: "element .missing: not found"}

	res := NewSession(deps).Run(context.Background())
	require.False(t, res.Success)
	require.Equal(t, "Tests failed", res.Reason)

	got, _ := deps.Store.Get(feat.ID)
	require.False(t, got.Passes)
	require.Equal(t, "FAILED: Tests failed", got.Notes)
	require.Empty(t, repo.commits)
}

func TestSession_EmptyModelReply(t *testing.T) {
	deps, model, validator, _ := newDeps(t)
	_, err := deps.Store.Add("Something", []string{"Verify body"}, "functional", 1)
	require.NoError(t, err)

	model.reply = "I am unable to help with that."

	res := NewSession(deps).Run(context.Background())
	require.False(t, res.Success)
	require.Empty(t, validator.runs)
	require.Contains(t, ledgerText(t, deps), "ERROR")
}

func TestSession_ValidatorErrorMarksFeatureFailed(t *testing.T) {
	deps, model, validator, repo := newDeps(t)
	feat, err := deps.Store.Add("Something", []string{"Verify body"}, "functional", 1)
	require.NoError(t, err)

	model.reply = "FILE: a.txt\nCONTENT:\nok"
	validator.err = context.DeadlineExceeded

	res := NewSession(deps).Run(context.Background())
	require.False(t, res.Success)
	require.Equal(t, "Tests failed", res.Reason)

	got, _ := deps.Store.Get(feat.ID)
	require.False(t, got.Passes)
	require.Equal(t, "FAILED: Tests failed", got.Notes)
	require.Empty(t, repo.commits)
	require.Contains(t, ledgerText(t, deps), "TEST FAILED")
}

func TestSession_ModelError(t *testing.T) {
	deps, model, _, _ := newDeps(t)
	_, err := deps.Store.Add("Something", nil, "functional", 1)
	require.NoError(t, err)

	model.err = context.DeadlineExceeded

	res := NewSession(deps).Run(context.Background())
	require.False(t, res.Success)
	require.Contains(t, res.Reason, "model request")
}

func TestSession_NoPendingFeatures(t *testing.T) {
	deps, _, validator, _ := newDeps(t)

	res := NewSession(deps).Run(context.Background())
	require.True(t, res.Success)
	require.True(t, res.AllComplete)
	require.Empty(t, validator.runs)
	require.Contains(t, ledgerText(t, deps), "ALL FEATURES COMPLETE")
}

func TestSession_PanicIsRecovered(t *testing.T) {
	deps, _, _, _ := newDeps(t)
	_, err := deps.Store.Add("Something", nil, "functional", 1)
	require.NoError(t, err)

	deps.Model = panicModel{}

	res := NewSession(deps).Run(context.Background())
	require.False(t, res.Success)
	require.Contains(t, res.Reason, "panic")
	require.Contains(t, ledgerText(t, deps), "session panic")
}

func TestSession_PromptCarriesFeatureDetails(t *testing.T) {
	deps, model, _, _ := newDeps(t)
	feat, err := deps.Store.Add("Login form works", []string{"Navigate to /login", "Click #submit"}, "functional", 2)
	require.NoError(t, err)

	model.reply = "FILE: login.html\nCONTENT:\nx"

	NewSession(deps).Run(context.Background())
	require.Len(t, model.prompts, 1)
	prompt := model.prompts[0]
	require.Contains(t, prompt, feat.ID)
	require.Contains(t, prompt, "Login form works")
	require.Contains(t, prompt, "1. Navigate to /login")
	require.Contains(t, prompt, "FILE:")
	require.Contains(t, prompt, "CONTENT:")
}

func TestRunLoop_DrainsQueue(t *testing.T) {
	deps, model, _, _ := newDeps(t)
	_, err := deps.Store.Add("First", nil, "functional", 2)
	require.NoError(t, err)
	_, err = deps.Store.Add("Second", nil, "functional", 1)
	require.NoError(t, err)

	model.reply = "FILE: out.txt\nCONTENT:\nok"

	completed, err := RunLoop(context.Background(), deps, 10, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 2, completed)
	require.Equal(t, 0, deps.Store.Summary().Pending)
}

func TestRunLoop_HonorsIterationCap(t *testing.T) {
	deps, model, validator, _ := newDeps(t)
	_, err := deps.Store.Add("Stubborn", nil, "functional", 1)
	require.NoError(t, err)

	model.reply = "FILE: out.txt\nCONTENT:\nok"
	validator.result = browser.Result{Success: false, Output: "nope"}

	completed, err := RunLoop(context.Background(), deps, 3, 0)
	require.NoError(t, err)
	require.Equal(t, 0, completed)
	require.Len(t, validator.runs, 3)
}

func TestRunLoop_CancelledContext(t *testing.T) {
	deps, _, _, _ := newDeps(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunLoop(ctx, deps, 5, 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSession_EndToEnd(t *testing.T) {
	deps, model, _, _ := newDeps(t)
	feat, err := deps.Store.Add("Homepage loads", []string{"Navigate to /", "Verify body"}, "functional", 1)
	require.NoError(t, err)

	next, ok := deps.Store.NextIncomplete()
	require.True(t, ok)
	require.Equal(t, feat.ID, next.ID)

	model.reply = "FILE: index.html\nCONTENT:\n<!doctype html>"
	res := NewSession(deps).Run(context.Background())
	require.True(t, res.Success)

	sum := deps.Store.Summary()
	require.Equal(t, 1, sum.Total)
	require.Equal(t, 1, sum.Completed)
	require.Equal(t, 0, sum.Pending)
	require.InDelta(t, 100.0, sum.Percentage, 0.001)

	_, ok = deps.Store.NextIncomplete()
	require.False(t, ok)
}

func TestSession_StepsValidatedFromRunnerSteps(t *testing.T) {
	deps, model, validator, _ := newDeps(t)
	steps := []string{"Navigate to /", "Wait 1 second", "Verify h1"}
	_, err := deps.Store.Add("Rendered header", steps, "ui", 1)
	require.NoError(t, err)

	model.reply = "FILE: a\nCONTENT:\nb"
	NewSession(deps).Run(context.Background())

	require.Len(t, validator.runs, 1)
	require.True(t, strings.HasPrefix(validator.runs[0][0], "Navigate"))
}
