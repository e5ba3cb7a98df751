package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	logDir := t.TempDir()

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:    "nil config uses defaults",
			config:  nil,
			wantErr: false,
		},
		{
			name: "console output",
			config: &Config{
				Level:  "info",
				Format: "console",
				Output: "console",
			},
			wantErr: false,
		},
		{
			name: "file output",
			config: &Config{
				Level:  "debug",
				Format: "json",
				Output: "file",
				File: FileConfig{
					Filename:   filepath.Join(logDir, "test.log"),
					MaxSize:    10,
					MaxAge:     7,
					MaxBackups: 3,
					Compress:   true,
				},
			},
			wantErr: false,
		},
		{
			name: "both outputs",
			config: &Config{
				Level:  "warn",
				Format: "json",
				Output: "both",
				File: FileConfig{
					Filename:   filepath.Join(logDir, "both.log"),
					MaxSize:    10,
					MaxAge:     7,
					MaxBackups: 3,
				},
			},
			wantErr: false,
		},
		{
			name: "invalid level",
			config: &Config{
				Level:  "verbose",
				Format: "json",
				Output: "console",
			},
			wantErr: true,
		},
		{
			name: "invalid format",
			config: &Config{
				Level:  "info",
				Format: "xml",
				Output: "console",
			},
			wantErr: true,
		},
		{
			name: "invalid output",
			config: &Config{
				Level:  "info",
				Format: "json",
				Output: "syslog",
			},
			wantErr: true,
		},
		{
			name: "file output without filename",
			config: &Config{
				Level:  "info",
				Format: "json",
				Output: "file",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lgr, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, lgr)
			lgr.Sync()
		})
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.File.MaxSize = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Output = "both"
	cfg.File.MaxAge = -1
	assert.Error(t, cfg.Validate())
}

func TestLogger_WithAndNamed(t *testing.T) {
	lgr, err := New(DefaultConfig())
	require.NoError(t, err)
	defer lgr.Sync()

	child := lgr.With(zap.String("component", "test"))
	require.NotNil(t, child)
	child.Info("child logger message")

	named := lgr.Named("ingest")
	require.NotNil(t, named)
	named.Info("named logger message")
}

func TestRequestIDContext(t *testing.T) {
	lgr, err := New(DefaultConfig())
	require.NoError(t, err)
	defer lgr.Sync()

	ctx := context.Background()
	assert.Equal(t, "", GetRequestID(ctx))
	assert.Same(t, lgr, lgr.WithContext(ctx))
	assert.Same(t, lgr, lgr.WithContext(nil))

	ctx = WithRequestID(ctx, "req-123")
	assert.Equal(t, "req-123", GetRequestID(ctx))
	assert.NotSame(t, lgr, lgr.WithContext(ctx))
}

func TestGlobalLogger(t *testing.T) {
	require.NotNil(t, L())
	require.NoError(t, InitGlobal(DefaultConfig()))

	Debug("debug message", zap.String("key", "value"))
	Info("info message", zap.String("key", "value"))
	Warn("warn message", zap.String("key", "value"))
	Error("error message", zap.String("key", "value"))

	// stdout Sync errors are environment-dependent
	_ = Sync()
	_ = os.Stdout.Sync()
}
