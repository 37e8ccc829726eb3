package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunner_NoStepsIsSuccess(t *testing.T) {
	r := NewRunner(DefaultConfig(), zap.NewNop())
	res, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestRunner_ShutdownWithoutStart(t *testing.T) {
	r := NewRunner(DefaultConfig(), zap.NewNop())
	require.NoError(t, r.Shutdown())
}
