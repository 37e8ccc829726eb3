package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"autoforge/internal/feature"
	"autoforge/internal/progress"
)

// BootstrapRepo is the version-control surface bootstrap needs.
type BootstrapRepo interface {
	IsRepo() bool
	Init(ctx context.Context) error
	Add(ctx context.Context, paths []string) error
	Commit(ctx context.Context, message string) error
}

// BootstrapDeps collects the collaborators for one-time project setup.
// Model may be nil, in which case the feature queue is seeded from the
// built-in template instead of generated from requirements.
type BootstrapDeps struct {
	Root         string
	Requirements string
	Store        *feature.Store
	Ledger       *progress.Ledger
	Model        Model
	Repo         BootstrapRepo
	Log          *zap.Logger
}

type featureSeed struct {
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Priority    int      `json:"priority"`
	Steps       []string `json:"steps"`
}

// Bootstrap prepares a fresh project: version control, a seeded feature
// queue, a runnable init script and an initial commit. It is idempotent:
// artifacts that already exist are left alone, so re-running it against a
// live project changes nothing.
func Bootstrap(ctx context.Context, deps BootstrapDeps) error {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	id := "init_" + uuid.NewString()[:8]
	deps.Ledger.SessionStart(id, "initializer")

	if !deps.Repo.IsRepo() {
		if err := deps.Repo.Init(ctx); err != nil {
			deps.Ledger.Error("git init failed: "+err.Error(), "bootstrap")
			deps.Ledger.SessionEnd(id, "bootstrap failed", 0)
			return fmt.Errorf("init repository: %w", err)
		}
		deps.Ledger.Append("GIT INITIALIZED", deps.Root)
	}

	if err := writeIfAbsent(filepath.Join(deps.Root, ".gitignore"), defaultGitignore); err != nil {
		log.Warn("failed to write .gitignore", zap.Error(err))
	}

	if deps.Store.Len() == 0 {
		seeds := seedFeatures(ctx, deps, log)
		for _, s := range seeds {
			if _, err := deps.Store.Add(s.Description, s.Steps, s.Category, s.Priority); err != nil {
				deps.Ledger.Error("seeding feature failed: "+err.Error(), "bootstrap")
				deps.Ledger.SessionEnd(id, "bootstrap failed", 0)
				return fmt.Errorf("seed feature store: %w", err)
			}
		}
		deps.Ledger.Append("FEATURE QUEUE SEEDED", fmt.Sprintf("%d features", len(seeds)))
	}

	if err := writeInitScript(deps.Root); err != nil {
		log.Warn("failed to write init script", zap.Error(err))
	}

	// Nothing to commit is fine here; an existing project already has its
	// own history.
	if err := deps.Repo.Add(ctx, []string{"."}); err == nil {
		if err := deps.Repo.Commit(ctx, "Initial project setup"); err != nil {
			log.Debug("initial commit skipped", zap.Error(err))
		}
	}

	deps.Ledger.SessionEnd(id, "bootstrap complete", 0)
	return nil
}

// seedFeatures turns free-form requirements into the initial queue via the
// model, falling back to the built-in template when no model is available
// or its reply is unusable.
func seedFeatures(ctx context.Context, deps BootstrapDeps, log *zap.Logger) []featureSeed {
	if deps.Model != nil && strings.TrimSpace(deps.Requirements) != "" {
		reply, err := deps.Model.Complete(ctx, featureListPrompt(deps.Requirements))
		if err == nil {
			if seeds := parseSeeds(reply); len(seeds) > 0 {
				return seeds
			}
			log.Warn("model reply held no usable feature list, using template")
		} else {
			log.Warn("feature generation failed, using template", zap.Error(err))
		}
	}
	return templateSeeds()
}

// parseSeeds extracts a JSON array from a possibly chatty model reply.
func parseSeeds(reply string) []featureSeed {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start < 0 || end <= start {
		return nil
	}
	var seeds []featureSeed
	if err := json.Unmarshal([]byte(reply[start:end+1]), &seeds); err != nil {
		return nil
	}
	var valid []featureSeed
	for _, s := range seeds {
		if strings.TrimSpace(s.Description) == "" {
			continue
		}
		valid = append(valid, s)
	}
	return valid
}

// templateSeeds is the default queue for a generic web application.
func templateSeeds() []featureSeed {
	return []featureSeed{
		{
			Description: "Homepage loads and displays the application title",
			Category:    "functional",
			Priority:    1,
			Steps:       []string{"Navigate to /", "Verify body", "Verify h1"},
		},
		{
			Description: "Site navigation links between the main pages",
			Category:    "ui",
			Priority:    2,
			Steps:       []string{"Navigate to /", "Click nav", "Verify main"},
		},
		{
			Description: "Contact form accepts input and confirms submission",
			Category:    "functional",
			Priority:    3,
			Steps: []string{
				"Navigate to /contact",
				`Type into input "hello"`,
				"Click button",
				"Verify .confirmation",
			},
		},
		{
			Description: "Pages share consistent styling and layout",
			Category:    "ui",
			Priority:    4,
			Steps:       []string{"Navigate to /", "Verify header", "Verify footer"},
		},
	}
}

// writeInitScript drops an init.sh matched to the project's toolchain.
// Existing scripts are never overwritten.
func writeInitScript(root string) error {
	path := filepath.Join(root, "init.sh")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	var body string
	switch {
	case fileExists(filepath.Join(root, "package.json")):
		body = "#!/bin/sh\nset -e\nnpm install\nnpm run dev\n"
	case fileExists(filepath.Join(root, "requirements.txt")):
		body = "#!/bin/sh\nset -e\npip install -r requirements.txt\npython app.py\n"
	case fileExists(filepath.Join(root, "go.mod")):
		body = "#!/bin/sh\nset -e\ngo run .\n"
	default:
		body = "#!/bin/sh\n# Start the development server here.\n"
	}
	return os.WriteFile(path, []byte(body), 0o755)
}

func writeIfAbsent(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

const defaultGitignore = `node_modules/
__pycache__/
*.pyc
.env
dist/
.DS_Store
`
