// Package progress maintains the append-only audit trail of agent activity.
// Every session, action, test result, and error lands here as human-readable
// text. The file is never rewritten in place; derived counters are computed
// by scanning for literal marker substrings.
package progress

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	separator = "================================================================================"

	markerSessionStart    = "SESSION START"
	markerFeatureComplete = "COMPLETED FEATURE"

	timeLayout = "2006-01-02 15:04:05"

	// test-result output is truncated to this many characters
	maxTestOutput = 500
)

// Ledger appends timestamped entries to a plain-text file. Appends are
// best-effort: a storage failure is logged locally and swallowed so that
// audit logging can never abort an in-progress session.
type Ledger struct {
	path string
	log  *zap.Logger
	now  func() time.Time
}

// New creates a ledger writing to path.
func New(path string, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{path: path, log: log, now: time.Now}
}

// Path returns the backing file path.
func (l *Ledger) Path() string { return l.path }

func (l *Ledger) write(text string) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		l.log.Warn("progress log unavailable", zap.Error(err))
		return
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		l.log.Warn("progress log unavailable", zap.Error(err))
		return
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		l.log.Warn("progress log write failed", zap.Error(err))
	}
}

// Append records one action with optional detail text. The entry is a
// timestamped line, an indented detail block when details are non-empty,
// and a terminating blank line.
func (l *Ledger) Append(action, details string) {
	entry := fmt.Sprintf("[%s] %s\n", l.now().Format(timeLayout), action)
	if details != "" {
		entry += "  Details: " + details + "\n"
	}
	l.write(entry + "\n")
}

// SessionStart records the start of a session inside a separator rule.
func (l *Ledger) SessionStart(sessionID, agentType string) {
	l.write(fmt.Sprintf("\n%s\n%s: %s\nAgent Type: %s\nTimestamp: %s\n%s\n\n",
		separator, markerSessionStart, sessionID, agentType,
		l.now().Format(timeLayout), separator))
	l.log.Info("session started", zap.String("session", sessionID), zap.String("agent", agentType))
}

// SessionEnd records the end of a session with its outcome summary.
func (l *Ledger) SessionEnd(sessionID, summary string, featuresCompleted int) {
	l.write(fmt.Sprintf("\nSESSION END: %s\nTimestamp: %s\nFeatures Completed: %d\nSummary: %s\n%s\n\n",
		sessionID, l.now().Format(timeLayout), featuresCompleted, summary, separator))
	l.log.Info("session ended", zap.String("session", sessionID))
}

// FeatureStart records that work began on a feature.
func (l *Ledger) FeatureStart(id, description string) {
	l.Append("STARTED FEATURE: "+id, "Description: "+description)
}

// FeatureComplete records the outcome of a feature attempt.
func (l *Ledger) FeatureComplete(id string, passed bool, notes string) {
	status := "FAILED"
	if passed {
		status = "PASSED"
	}
	l.Append(fmt.Sprintf("%s: %s - %s", markerFeatureComplete, id, status), notes)
}

// CodeChange records a file created, modified, or deleted by the agent.
func (l *Ledger) CodeChange(path, changeType, description string) {
	l.Append(fmt.Sprintf("CODE %s: %s", strings.ToUpper(changeType), path), description)
}

// TestResult records a validation run, truncating verbose output.
func (l *Ledger) TestResult(name string, passed bool, output string) {
	status := "FAILED"
	if passed {
		status = "PASSED"
	}
	if len(output) > maxTestOutput {
		output = output[:maxTestOutput]
	}
	l.Append(fmt.Sprintf("TEST %s: %s", status, name), output)
}

// GitCommit records a commit by its short hash.
func (l *Ledger) GitCommit(hash, message string) {
	if len(hash) > 8 {
		hash = hash[:8]
	}
	l.Append("GIT COMMIT: "+hash, message)
}

// Error records a failure with its context.
func (l *Ledger) Error(message, context string) {
	l.Append("ERROR: "+message, context)
}

// Thinking records free-form agent reasoning.
func (l *Ledger) Thinking(thought string) {
	l.Append("THINKING", thought)
}

func (l *Ledger) read() string {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return ""
	}
	return string(data)
}

// Tail returns the last n lines of the ledger, or everything when the file
// is absent or shorter.
func (l *Ledger) Tail(n int) string {
	content := l.read()
	if content == "" {
		return ""
	}
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// SessionCount counts recorded session starts.
func (l *Ledger) SessionCount() int {
	return strings.Count(l.read(), markerSessionStart)
}

// FeatureCompletionCount counts recorded feature completions (both passed
// and failed attempts).
func (l *Ledger) FeatureCompletionCount() int {
	return strings.Count(l.read(), markerFeatureComplete)
}

// Summary aggregates the derived counters with a view of recent activity.
type Summary struct {
	TotalSessions          int      `json:"total_sessions"`
	TotalFeaturesCompleted int      `json:"total_features_completed"`
	LastSession            string   `json:"last_session"`
	RecentActions          []string `json:"recent_actions"`
}

// Summary scans the ledger and returns derived counters plus the last ten
// non-blank lines of activity.
func (l *Ledger) Summary() Summary {
	recent := l.Tail(50)
	var lines []string
	for _, line := range strings.Split(recent, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > 10 {
		lines = lines[len(lines)-10:]
	}
	return Summary{
		TotalSessions:          l.SessionCount(),
		TotalFeaturesCompleted: l.FeatureCompletionCount(),
		LastSession:            recent,
		RecentActions:          lines,
	}
}
