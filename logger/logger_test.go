package logger_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/paycompare/logger"
)

func TestLogger_WritesFieldsAndSource(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf).Named("rates")

	log.Info(context.Background(), "rates reloaded",
		logger.Int("default_entries", 3),
		logger.Strings("paths", []string{"a.xlsx", "b.xlsx"}),
		logger.Error(errors.New("boom")),
	)

	out := buf.String()
	assert.Contains(t, out, "msg=\"rates reloaded\"")
	assert.Contains(t, out, "component=rates")
	assert.Contains(t, out, "default_entries=3")
	assert.Contains(t, out, "paths=a.xlsx,b.xlsx")
	assert.Contains(t, out, "error=boom")
	assert.Contains(t, out, "source=logger/logger_test.go:")
}

func TestSetLevelString(t *testing.T) {
	t.Cleanup(func() { logger.SetLevel(slog.LevelInfo) })

	var buf bytes.Buffer
	log := logger.New(&buf)

	require.NoError(t, logger.SetLevelString("warn"))
	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	require.NoError(t, logger.SetLevelString("DEBUG"))
	log.Debug(context.Background(), "debugging")
	assert.Contains(t, buf.String(), "debugging")

	assert.Error(t, logger.SetLevelString("verbose"))
}
