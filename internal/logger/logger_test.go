package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitialize(t *testing.T) {
	defer func() { Logger = zap.NewNop().Sugar() }()

	require.NoError(t, Initialize(false, false))
	assert.False(t, Logger.Desugar().Core().Enabled(zap.InfoLevel))
	assert.True(t, Logger.Desugar().Core().Enabled(zap.WarnLevel))

	require.NoError(t, Initialize(true, true))
	assert.True(t, Logger.Desugar().Core().Enabled(zap.DebugLevel))
	assert.NotNil(t, Named("parse"))
}
