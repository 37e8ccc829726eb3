package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"autoforge/internal/config"
)

// State is the scheduler's lifecycle position.
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateRunning      State = "running"
	StatePaused       State = "paused"
	StateStopped      State = "stopped"
	StateCompleted    State = "completed"
)

// allowedTransitions is the complete transition table. Anything not listed
// here is a bug in the caller.
var allowedTransitions = map[State][]State{
	StateIdle:         {StateInitializing, StateRunning, StateStopped},
	StateInitializing: {StateRunning, StateStopped},
	StateRunning:      {StatePaused, StateStopped, StateCompleted},
	StatePaused:       {StateRunning, StateStopped},
	StateStopped:      {},
	StateCompleted:    {},
}

// Mode selects how many sessions the scheduler runs and how it decides to
// continue.
type Mode string

const (
	// ModeSingle runs exactly one session.
	ModeSingle Mode = "single"
	// ModeInteractive runs a session, then waits for operator confirmation.
	ModeInteractive Mode = "interactive"
	// ModeContinuous loops autonomously up to the iteration cap.
	ModeContinuous Mode = "continuous"
)

// Status is a point-in-time snapshot of the scheduler.
type Status struct {
	State               State `json:"state"`
	Iterations          int   `json:"iterations"`
	ConsecutiveFailures int   `json:"consecutive_failures"`
	FeaturesCompleted   int   `json:"features_completed"`
}

// Scheduler owns the run-mode state machine and the session loop. It is
// the only writer of its state; Pause, Resume and Stop just set flags the
// loop honors at iteration boundaries.
type Scheduler struct {
	cfg  config.SchedulerConfig
	deps Deps
	log  *zap.Logger

	// Input is where interactive mode reads operator confirmations from.
	// Defaults to stdin.
	Input io.Reader

	// runSession and bootstrapFn exist so tests can substitute outcomes.
	runSession  func(ctx context.Context) Result
	bootstrapFn func(ctx context.Context) error

	mu                  sync.Mutex
	state               State
	iterations          int
	consecutiveFailures int
	featuresCompleted   int
	pauseRequested      bool
	stopRequested       bool

	storeChanged chan struct{}
}

// NewScheduler creates an idle scheduler over the given session deps.
// bootstrapFn runs when the feature queue is empty at start; pass nil to
// disable bootstrapping.
func NewScheduler(cfg config.SchedulerConfig, deps Deps, bootstrapFn func(ctx context.Context) error) *Scheduler {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{
		cfg:          cfg,
		deps:         deps,
		log:          log.Named("scheduler"),
		Input:        os.Stdin,
		bootstrapFn:  bootstrapFn,
		state:        StateIdle,
		storeChanged: make(chan struct{}, 1),
	}
	s.runSession = func(ctx context.Context) Result {
		return NewSession(deps).Run(ctx)
	}
	return s
}

// Status reports the current snapshot.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:               s.state,
		Iterations:          s.iterations,
		ConsecutiveFailures: s.consecutiveFailures,
		FeaturesCompleted:   s.featuresCompleted,
	}
}

// Pause asks the loop to pause before the next session.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauseRequested = true
}

// Resume clears a pause request.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauseRequested = false
}

// Stop asks the loop to exit gracefully at the next iteration boundary.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopRequested = true
}

func (s *Scheduler) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, next := range allowedTransitions[s.state] {
		if next == to {
			s.log.Info("state transition",
				zap.String("from", string(s.state)),
				zap.String("to", string(to)))
			s.state = to
			return nil
		}
	}
	return fmt.Errorf("invalid transition %s -> %s", s.state, to)
}

// Run drives the scheduler through one full lifecycle in the given mode.
// It returns when the queue drains, the mode's iteration budget is spent,
// the operator declines to continue, or the context is cancelled.
func (s *Scheduler) Run(ctx context.Context, mode Mode) error {
	if s.needsBootstrap() {
		if err := s.transition(StateInitializing); err != nil {
			return err
		}
		if s.bootstrapFn == nil {
			_ = s.transition(StateStopped)
			return fmt.Errorf("project needs bootstrapping but no bootstrap configured")
		}
		if err := s.bootstrapFn(ctx); err != nil {
			_ = s.transition(StateStopped)
			return fmt.Errorf("bootstrap: %w", err)
		}
		if err := s.deps.Store.Reload(); err != nil {
			_ = s.transition(StateStopped)
			return fmt.Errorf("reload after bootstrap: %w", err)
		}
	}
	if err := s.transition(StateRunning); err != nil {
		return err
	}

	if s.cfg.WatchFeatureList {
		stop, err := s.watchStore()
		if err != nil {
			s.log.Warn("feature list watch unavailable", zap.Error(err))
		} else {
			defer stop()
		}
	}

	var err error
	switch mode {
	case ModeSingle:
		err = s.runSingle(ctx)
	case ModeInteractive:
		err = s.runInteractive(ctx)
	case ModeContinuous:
		err = s.runContinuous(ctx)
	default:
		_ = s.transition(StateStopped)
		return fmt.Errorf("unknown mode %q", mode)
	}
	return err
}

// needsBootstrap reports whether required artifacts are missing. Both the
// feature store and the progress ledger must exist; an empty feature queue
// also means the project was never initialized.
func (s *Scheduler) needsBootstrap() bool {
	if _, err := os.Stat(s.deps.Store.Path()); err != nil {
		return true
	}
	if _, err := os.Stat(s.deps.Ledger.Path()); err != nil {
		return true
	}
	return s.deps.Store.Len() == 0
}

func (s *Scheduler) runSingle(ctx context.Context) error {
	res := s.executeSession(ctx)
	if res.Success && !res.AllComplete {
		s.log.Info("session completed", zap.String("feature", res.FeatureID))
	}
	return s.transition(StateCompleted)
}

func (s *Scheduler) runInteractive(ctx context.Context) error {
	reader := bufio.NewReader(s.Input)
	for {
		if stopped, err := s.checkpoint(ctx); stopped {
			return err
		}
		if err := s.deps.Store.Reload(); err != nil {
			_ = s.transition(StateStopped)
			return fmt.Errorf("reload feature store: %w", err)
		}
		if s.deps.Store.Summary().Pending == 0 {
			return s.transition(StateCompleted)
		}

		s.executeSession(ctx)

		fmt.Print("Continue with the next session? [Y/n] ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return s.transition(StateStopped)
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		if answer == "n" || answer == "no" || answer == "q" {
			return s.transition(StateStopped)
		}
	}
}

func (s *Scheduler) runContinuous(ctx context.Context) error {
	max := s.cfg.MaxIterations
	if max <= 0 {
		max = 1000
	}
	for i := 0; i < max; i++ {
		if stopped, err := s.checkpoint(ctx); stopped {
			return err
		}
		if err := s.deps.Store.Reload(); err != nil {
			_ = s.transition(StateStopped)
			return fmt.Errorf("reload feature store: %w", err)
		}
		if s.deps.Store.Summary().Pending == 0 {
			return s.transition(StateCompleted)
		}

		res := s.executeSession(ctx)
		if res.AllComplete {
			return s.transition(StateCompleted)
		}
		if !res.Success {
			if s.failureThresholdHit() {
				if err := s.cooldown(ctx); err != nil {
					return err
				}
			}
		}

		// This session's own store writes also fire the watch. Drop any
		// pending signal so only edits made during the sleep cut it short;
		// the reload at the top of the loop covers everything else.
		select {
		case <-s.storeChanged:
		default:
		}
		select {
		case <-ctx.Done():
			_ = s.transition(StateStopped)
			return ctx.Err()
		case <-s.storeChanged:
			s.log.Info("feature list changed externally, reloading next iteration")
		case <-time.After(s.cfg.IterationDelayDuration()):
		}
	}
	s.log.Info("iteration budget spent", zap.Int("iterations", max))
	return s.transition(StateCompleted)
}

// checkpoint handles cancellation and operator pause/stop requests between
// sessions. It returns true when the loop must exit.
func (s *Scheduler) checkpoint(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		_ = s.transition(StateStopped)
		return true, err
	}
	s.mu.Lock()
	stop := s.stopRequested
	pause := s.pauseRequested
	s.mu.Unlock()
	if stop {
		return true, s.transition(StateStopped)
	}
	if pause {
		if err := s.transition(StatePaused); err == nil {
			for {
				select {
				case <-ctx.Done():
					_ = s.transition(StateStopped)
					return true, ctx.Err()
				case <-time.After(200 * time.Millisecond):
				}
				s.mu.Lock()
				resumed := !s.pauseRequested
				stop := s.stopRequested
				s.mu.Unlock()
				if stop {
					return true, s.transition(StateStopped)
				}
				if resumed {
					return false, s.transition(StateRunning)
				}
			}
		}
	}
	return false, nil
}

// executeSession runs one session and folds its result into the counters.
func (s *Scheduler) executeSession(ctx context.Context) Result {
	res := s.runSession(ctx)

	s.mu.Lock()
	s.iterations++
	if res.Success {
		s.consecutiveFailures = 0
		if !res.AllComplete {
			s.featuresCompleted++
		}
	} else {
		s.consecutiveFailures++
	}
	s.mu.Unlock()
	return res
}

func (s *Scheduler) failureThresholdHit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	max := s.cfg.MaxConsecutiveFailures
	if max <= 0 {
		max = 3
	}
	return s.consecutiveFailures >= max
}

// cooldown pauses after repeated failures, waits out the configured
// duration, then resets the failure counter and resumes. There is no
// escalation: every cooldown is the same fixed length.
func (s *Scheduler) cooldown(ctx context.Context) error {
	if err := s.transition(StatePaused); err != nil {
		return err
	}
	d := s.cfg.CooldownDuration()
	s.log.Warn("too many consecutive failures, cooling down", zap.Duration("cooldown", d))
	s.deps.Ledger.Append("COOLDOWN", fmt.Sprintf("pausing %s after repeated failures", d))

	select {
	case <-ctx.Done():
		_ = s.transition(StateStopped)
		return ctx.Err()
	case <-time.After(d):
	}

	s.mu.Lock()
	s.consecutiveFailures = 0
	s.mu.Unlock()
	return s.transition(StateRunning)
}

// watchStore signals the loop when the feature list file is edited outside
// the process, so operator edits land without waiting a full delay cycle.
// The store file is replaced by rename on every save, which would kill a
// watch placed on the file itself, so the watch goes on the parent
// directory and events are filtered by name.
func (s *Scheduler) watchStore() (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	target := s.deps.Store.Path()
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != target {
					continue
				}
				if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename) {
					select {
					case s.storeChanged <- struct{}{}:
					default:
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warn("feature list watch error", zap.Error(err))
			}
		}
	}()
	return func() { watcher.Close() }, nil
}
