package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Result is the outcome of running a sequence of validation steps.
type Result struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
}

// Runner executes natural-language validation steps in a real browser.
// One Chrome instance is shared across runs; each run gets a fresh page.
type Runner struct {
	cfg Config
	log *zap.Logger

	mu      sync.Mutex
	browser *rod.Browser
	cleanup func()
}

// NewRunner creates a runner. The browser launches lazily on first use.
func NewRunner(cfg Config, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{cfg: cfg, log: log}
}

// Start launches the shared Chrome instance, or verifies the existing one
// still responds.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startLocked(ctx)
}

func (r *Runner) startLocked(ctx context.Context) error {
	if r.browser != nil {
		if _, err := r.browser.Version(); err == nil {
			return nil
		}
		r.log.Warn("stale browser connection, relaunching")
		_ = r.browser.Close()
		r.browser = nil
	}

	l := launcher.New().Headless(r.cfg.Headless)
	if r.cfg.Bin != "" {
		l = l.Bin(r.cfg.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	r.browser = browser
	r.cleanup = l.Cleanup
	r.log.Info("browser connected", zap.Bool("headless", r.cfg.Headless))
	return nil
}

// Shutdown closes the browser.
func (r *Runner) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	if r.cleanup != nil {
		r.cleanup()
		r.cleanup = nil
	}
	return err
}

// Run executes the steps in order against a fresh page. The first failing
// step ends the run; the result carries a per-step transcript either way.
// Step failures land in the Result, not the error: an error here means the
// browser itself was unusable.
func (r *Runner) Run(ctx context.Context, steps []string) (Result, error) {
	if len(steps) == 0 {
		return Result{Success: true, Output: "no steps to run"}, nil
	}

	r.mu.Lock()
	if err := r.startLocked(ctx); err != nil {
		r.mu.Unlock()
		return Result{}, err
	}
	browser := r.browser
	r.mu.Unlock()

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return Result{}, fmt.Errorf("create page: %w", err)
	}
	defer page.Close()

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             r.cfg.GetViewportWidth(),
		Height:            r.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
	}).Call(page); err != nil {
		r.log.Warn("failed to set viewport", zap.Error(err))
	}

	var transcript []string
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return Result{Output: strings.Join(transcript, "\n")}, err
		}
		if err := r.execute(ctx, page, parseStep(step, r.cfg)); err != nil {
			transcript = append(transcript, fmt.Sprintf("✗ Step %d: %s (%v)", i+1, step, err))
			return Result{Success: false, Output: strings.Join(transcript, "\n")}, nil
		}
		transcript = append(transcript, fmt.Sprintf("✓ Step %d: %s", i+1, step))
	}
	transcript = append(transcript, "All steps passed")
	return Result{Success: true, Output: strings.Join(transcript, "\n")}, nil
}

// Smoke checks that the application root renders at all. Callers treat a
// failure as advisory.
func (r *Runner) Smoke(ctx context.Context) (Result, error) {
	return r.Run(ctx, []string{
		"Navigate to " + r.cfg.GetBaseURL(),
		"Verify body",
	})
}

func (r *Runner) execute(ctx context.Context, page *rod.Page, act action) error {
	p := page.Context(ctx)
	switch act.kind {
	case actionNavigate:
		if err := p.Timeout(r.cfg.NavigationTimeout()).Navigate(act.target); err != nil {
			return fmt.Errorf("navigate %s: %w", act.target, err)
		}
		return p.Timeout(r.cfg.NavigationTimeout()).WaitLoad()

	case actionClick:
		el, err := p.Timeout(r.cfg.StepTimeout()).Element(act.target)
		if err != nil {
			return fmt.Errorf("element %s: %w", act.target, err)
		}
		return el.Click(proto.InputMouseButtonLeft, 1)

	case actionFill:
		el, err := p.Timeout(r.cfg.StepTimeout()).Element(act.target)
		if err != nil {
			return fmt.Errorf("element %s: %w", act.target, err)
		}
		return el.Input(act.text)

	case actionVerify:
		if _, err := p.Timeout(r.cfg.StepTimeout()).Element(act.target); err != nil {
			return fmt.Errorf("element %s: %w", act.target, err)
		}
		return nil

	case actionSleep:
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(act.duration):
			return nil
		}
	}
	return errors.New("unknown action")
}
