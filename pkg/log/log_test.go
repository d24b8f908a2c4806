package log

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{in: "", want: zapcore.InfoLevel},
		{in: "info", want: zapcore.InfoLevel},
		{in: "debug", want: zapcore.DebugLevel},
		{in: "warn", want: zapcore.WarnLevel},
		{in: "error", want: zapcore.ErrorLevel},
		{in: "bogus", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			lvl, err := ParseLogLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, lvl.Level())
		})
	}
}

func TestErrorwDowngradesContextCanceled(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := newPexecLogger(zap.New(core).Sugar())

	l.Errorw("run aborted", "error", fmt.Errorf("waiting: %w", context.Canceled))
	l.Errorw("run failed", "error", errors.New("boom"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}

func TestNilLoggerIsNop(t *testing.T) {
	var l *pexecLogger
	assert.NotPanics(t, func() {
		l.Debugw("nothing")
		l.Warnw("nothing")
	})
}

func TestCreateLoggerWithFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "pexec.log")

	lvl, err := ParseLogLevel("debug")
	require.NoError(t, err)

	l := CreateLogger(lvl, logFile)
	l.Infow("hello", "key", "value")
	require.NoError(t, l.Desugar().Sync())

	b, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"hello"`)
	assert.Contains(t, string(b), `"key":"value"`)
}
