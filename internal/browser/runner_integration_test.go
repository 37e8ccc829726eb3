//go:build integration

package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Needs a local Chrome. Run with: go test -tags integration ./internal/browser
func TestRunner_LiveSteps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Headless = true

	r := NewRunner(cfg, zap.NewNop())
	defer r.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	res, err := r.Run(ctx, []string{
		"Navigate to about:blank",
		"Verify body",
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Output)
}
