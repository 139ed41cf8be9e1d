package logger

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuffered(component string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New(component)
	l.Logger = log.New(&buf, "", 0)
	return l, &buf
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug": LevelDebug,
		"INFO":  LevelInfo,
		"":      LevelInfo,
		"warn":  LevelWarn,
		"Error": LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestLevelFiltering(t *testing.T) {
	t.Cleanup(func() { SetLevel(LevelInfo) })

	l, buf := newBuffered("scheduler")
	SetLevel(LevelWarn)

	l.Info("hidden %d", 1)
	l.Debug("hidden")
	l.Warn("shown %s", "warn")
	l.Error("shown error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] [scheduler] shown warn")
	assert.Contains(t, out, "[ERROR] [scheduler] shown error")
}

func TestWithNestsComponent(t *testing.T) {
	l, buf := newBuffered("scheduler")
	l.With("reminder").Info("tick")
	assert.Contains(t, buf.String(), "[scheduler/reminder] tick")
}

func TestCronLogger(t *testing.T) {
	l, buf := newBuffered("cron")
	CronLogger{L: l}.Error(errors.New("boom"), "panic", "job", "reminder", "dangling")
	assert.Contains(t, buf.String(), "panic: boom job=reminder")
	assert.NotContains(t, buf.String(), "dangling")
}
