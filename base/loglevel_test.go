package base

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFromString(t *testing.T) {
	assert.Equal(t, LevelTrace, LevelFromString("TRACE"))
	assert.Equal(t, LevelDebug, LevelFromString("debug"))
	assert.Equal(t, LevelInfo, LevelFromString("Info"))
	assert.Equal(t, LevelWarn, LevelFromString("WARN"))
	assert.Equal(t, LevelError, LevelFromString("error"))
	assert.Equal(t, LevelFatal, LevelFromString("FATAL"))
	assert.Equal(t, LevelInfo, LevelFromString("NOTICE"), "unknown names map to INFO")
	assert.Equal(t, LevelInfo, LevelFromString(""))
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "TRACE", LevelTrace.String())
	assert.Equal(t, "FATAL", LevelFatal.String())
	assert.Equal(t, "INFO", LogLevel(42).String())
}

func TestLevelPriority(t *testing.T) {
	assert.True(t, LevelDebug.IsLowPriority())
	assert.True(t, LevelTrace.IsLowPriority())
	assert.False(t, LevelInfo.IsLowPriority())
	assert.False(t, LevelWarn.IsLowPriority())
	assert.False(t, LevelError.IsLowPriority())
	assert.False(t, LevelFatal.IsLowPriority())

	assert.True(t, LevelFatal > LevelError)
	assert.True(t, LevelError > LevelWarn)
}

func TestIsLevelName(t *testing.T) {
	assert.True(t, IsLevelName("warn"))
	assert.False(t, IsLevelName("WARNING"))
}
