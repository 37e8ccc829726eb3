package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"autoforge/internal/agent"
	"autoforge/internal/browser"
	"autoforge/internal/config"
	"autoforge/internal/feature"
	"autoforge/internal/llm"
	"autoforge/internal/progress"
	"autoforge/internal/vcs"
)

var (
	// Global flags
	verbose     bool
	projectRoot string
	configPath  string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "autoforge",
	Short: "AutoForge - autonomous feature-by-feature project builder",
	Long: `AutoForge builds a project one feature at a time.

It keeps a persistent feature queue, asks a language model to implement
the highest-priority incomplete feature, validates the result with real
browser checks, commits what passes, and records everything in an
append-only progress log.

Typical usage:
  autoforge init --requirements "a todo app with login"
  autoforge run --mode continuous`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// initCmd bootstraps a new project
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap a project: git, feature queue, init script",
	Long: `Prepares the project root for autonomous building:
  1. Initializes git if the directory is not already a repository
  2. Seeds the feature queue (from --requirements via the model, or a template)
  3. Writes an init.sh matched to the project's toolchain
Re-running init against an already bootstrapped project is a no-op.`,
	RunE: runInit,
}

// runCmd runs coding sessions
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run coding sessions against the feature queue",
	Long: `Runs the scheduler in one of three modes:
  single      one session, then exit
  interactive one session at a time, asking before each next one
  continuous  loop until the queue drains or the iteration cap is hit`,
	RunE: runSessions,
}

// statusCmd prints queue and ledger state
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show feature queue progress and recent activity",
	RunE:  showStatus,
}

// featuresCmd manages the feature queue directly
var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Inspect and edit the feature queue",
}

var featuresListCmd = &cobra.Command{
	Use:   "list",
	Short: "List features, optionally filtered by category",
	RunE:  listFeatures,
}

var featuresAddCmd = &cobra.Command{
	Use:   "add [description]",
	Short: "Add a feature to the queue",
	Args:  cobra.MinimumNArgs(1),
	RunE:  addFeature,
}

var featuresExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the feature list as markdown",
	RunE:  exportFeatures,
}

var featuresClearCmd = &cobra.Command{
	Use:   "clear-completed",
	Short: "Remove completed features from the queue",
	RunE:  clearCompleted,
}

var (
	initRequirements string
	runMode          string
	runMaxIterations int
	listCategory     string
	addSteps         []string
	addCategory      string
	addPriority      int
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&projectRoot, "project-root", "p", ".", "Project directory to build in")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <project-root>/autoforge.yaml)")

	initCmd.Flags().StringVar(&initRequirements, "requirements", "", "What to build, in plain language")

	runCmd.Flags().StringVar(&runMode, "mode", "continuous", "Run mode: single, interactive, continuous")
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "Override the configured iteration cap")

	featuresListCmd.Flags().StringVar(&listCategory, "category", "", "Only show this category")
	featuresAddCmd.Flags().StringSliceVar(&addSteps, "step", nil, "Validation step (repeatable)")
	featuresAddCmd.Flags().StringVar(&addCategory, "category", "functional", "Feature category")
	featuresAddCmd.Flags().IntVar(&addPriority, "priority", 3, "Priority 1 (highest) to 5 (lowest)")

	featuresCmd.AddCommand(featuresListCmd)
	featuresCmd.AddCommand(featuresAddCmd)
	featuresCmd.AddCommand(featuresExportCmd)
	featuresCmd.AddCommand(featuresClearCmd)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(featuresCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// project bundles everything opened against one project root.
type project struct {
	cfg    *config.Config
	store  *feature.Store
	ledger *progress.Ledger
	git    *vcs.Git
}

func openProject() (*project, error) {
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, err
	}
	projectRoot = root

	path := configPath
	if path == "" {
		path = filepath.Join(root, "autoforge.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	store, err := feature.Open(filepath.Join(root, cfg.Paths.FeatureList), logger)
	if err != nil {
		return nil, err
	}

	return &project{
		cfg:    cfg,
		store:  store,
		ledger: progress.New(filepath.Join(root, cfg.Paths.ProgressLog), logger),
		git:    vcs.New(root, logger),
	}, nil
}

func (p *project) sessionDeps() (agent.Deps, *browser.Runner, error) {
	model, err := llm.New(p.cfg.LLM)
	if err != nil {
		return agent.Deps{}, nil, err
	}

	runner := browser.NewRunner(browser.Config{
		Headless:            p.cfg.Browser.Headless,
		Bin:                 p.cfg.Browser.Bin,
		BaseURL:             p.cfg.Browser.BaseURL,
		ViewportWidth:       p.cfg.Browser.ViewportWidth,
		ViewportHeight:      p.cfg.Browser.ViewportHeight,
		NavigationTimeoutMs: p.cfg.Browser.NavigationTimeoutMs,
		StepTimeoutMs:       p.cfg.Browser.StepTimeoutMs,
	}, logger)

	return agent.Deps{
		Root:      projectRoot,
		Store:     p.store,
		Ledger:    p.ledger,
		Model:     model,
		Validator: runner,
		Repo:      p.git,
		Log:       logger,
	}, runner, nil
}

// signalContext returns a context cancelled by SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func runInit(cmd *cobra.Command, args []string) error {
	p, err := openProject()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Bootstrapping works without an API key; the queue falls back to the
	// built-in template when no model is reachable.
	var model agent.Model
	if client, err := llm.New(p.cfg.LLM); err == nil {
		model = client
	} else {
		logger.Warn("no model available, seeding from template", zap.Error(err))
	}

	if err := agent.Bootstrap(ctx, agent.BootstrapDeps{
		Root:         projectRoot,
		Requirements: initRequirements,
		Store:        p.store,
		Ledger:       p.ledger,
		Model:        model,
		Repo:         p.git,
		Log:          logger,
	}); err != nil {
		return err
	}

	sum := p.store.Summary()
	fmt.Printf("Project initialized: %d features queued\n", sum.Total)
	return nil
}

func runSessions(cmd *cobra.Command, args []string) error {
	mode := agent.Mode(runMode)
	switch mode {
	case agent.ModeSingle, agent.ModeInteractive, agent.ModeContinuous:
	default:
		return fmt.Errorf("unknown mode %q (want single, interactive, or continuous)", runMode)
	}

	p, err := openProject()
	if err != nil {
		return err
	}
	deps, runner, err := p.sessionDeps()
	if err != nil {
		return err
	}
	defer func() {
		if err := runner.Shutdown(); err != nil {
			logger.Warn("browser shutdown failed", zap.Error(err))
		}
	}()

	ctx, cancel := signalContext()
	defer cancel()

	cfg := p.cfg.Scheduler
	if runMaxIterations > 0 {
		cfg.MaxIterations = runMaxIterations
	}

	sched := agent.NewScheduler(cfg, deps, func(ctx context.Context) error {
		return agent.Bootstrap(ctx, agent.BootstrapDeps{
			Root:   projectRoot,
			Store:  p.store,
			Ledger: p.ledger,
			Model:  deps.Model,
			Repo:   p.git,
			Log:    logger,
		})
	})

	if err := sched.Run(ctx, mode); err != nil {
		if ctx.Err() != nil {
			logger.Info("stopped by signal")
			return nil
		}
		return err
	}

	st := sched.Status()
	fmt.Printf("Finished in state %s: %d sessions, %d features completed\n",
		st.State, st.Iterations, st.FeaturesCompleted)
	return nil
}

func showStatus(cmd *cobra.Command, args []string) error {
	p, err := openProject()
	if err != nil {
		return err
	}

	sum := p.store.Summary()
	fmt.Printf("Features: %d/%d complete (%.1f%%), %d pending\n",
		sum.Completed, sum.Total, sum.Percentage, sum.Pending)

	ls := p.ledger.Summary()
	fmt.Printf("Sessions recorded: %d\n", ls.TotalSessions)
	fmt.Printf("Feature attempts logged: %d\n", ls.TotalFeaturesCompleted)
	if len(ls.RecentActions) > 0 {
		fmt.Println("\nRecent activity:")
		for _, line := range ls.RecentActions {
			fmt.Println("  " + line)
		}
	}
	return nil
}

func listFeatures(cmd *cobra.Command, args []string) error {
	p, err := openProject()
	if err != nil {
		return err
	}

	for _, f := range p.store.List(listCategory) {
		status := " "
		if f.Passes {
			status = "x"
		}
		fmt.Printf("[%s] %s  p%d  %-12s %s\n", status, f.ID, f.Priority, f.Category, f.Description)
	}
	return nil
}

func addFeature(cmd *cobra.Command, args []string) error {
	p, err := openProject()
	if err != nil {
		return err
	}

	feat, err := p.store.Add(strings.Join(args, " "), addSteps, addCategory, addPriority)
	if err != nil {
		return err
	}
	fmt.Printf("Added %s\n", feat.ID)
	return nil
}

func exportFeatures(cmd *cobra.Command, args []string) error {
	p, err := openProject()
	if err != nil {
		return err
	}
	fmt.Print(p.store.ExportMarkdown())
	return nil
}

func clearCompleted(cmd *cobra.Command, args []string) error {
	p, err := openProject()
	if err != nil {
		return err
	}

	n, err := p.store.ClearCompleted()
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d completed features\n", n)
	return nil
}
