package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerConsoleOutput(t *testing.T) {
	config := NewDefaultConfig()
	config.Logging.Level = "debug"

	logger := InitLogger(config)
	require.NotNil(t, logger)
	logger.Debug().Str("key", "value").Msg("console writer accepted")

	assert.Equal(t, logger, GetLogger(), "InitLogger must install the global logger")
}

func TestPrintBanner(t *testing.T) {
	PrintBanner(GetVersion())
}
