package mtproto

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gotd/td/session"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultSessionFile  = ".cache/telegram/bot-session.json"
	defaultUpdateBuffer = 1024
	defaultRPCTimeout   = 10 * time.Second
)

// Config describes one MTProto bot connection.
type Config struct {
	// AppID and AppHash identify the API application (my.telegram.org).
	AppID   int
	AppHash string
	// Token is the bot token used for bot authorization.
	Token string
	// SessionFile persists the authorization key between runs.
	SessionFile string
	// UpdateBuffer bounds queued updates not yet fetched; oldest are dropped.
	UpdateBuffer int
	// RPCTimeout bounds each outbound call.
	RPCTimeout time.Duration
	// TestEnvironment connects to the test data centers.
	TestEnvironment bool
	// LogLevel controls the gotd client logger.
	LogLevel slog.Level
}

func (cfg Config) normalize() (Config, error) {
	cfg.AppHash = strings.TrimSpace(cfg.AppHash)
	cfg.Token = strings.TrimSpace(cfg.Token)
	cfg.SessionFile = strings.TrimSpace(cfg.SessionFile)

	if cfg.AppID <= 0 {
		return Config{}, fmt.Errorf("app_id must be > 0")
	}
	if cfg.AppHash == "" {
		return Config{}, fmt.Errorf("app_hash is required")
	}
	if cfg.Token == "" {
		return Config{}, fmt.Errorf("token is required")
	}
	if cfg.SessionFile == "" {
		cfg.SessionFile = defaultSessionFile
	}
	if cfg.UpdateBuffer <= 0 {
		cfg.UpdateBuffer = defaultUpdateBuffer
	}
	if cfg.RPCTimeout <= 0 {
		cfg.RPCTimeout = defaultRPCTimeout
	}

	return cfg, nil
}

func newSessionStorage(path string) (*session.FileStorage, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute session file path: %w", err)
	}
	sessionDir := filepath.Dir(absPath)
	if err := os.MkdirAll(sessionDir, 0o700); err != nil {
		return nil, fmt.Errorf("create session directory %s: %w", sessionDir, err)
	}

	return &session.FileStorage{Path: absPath}, nil
}

// newZapLogger builds the gotd client logger at the level matching the
// application's slog level.
func newZapLogger(level slog.Level) *zap.Logger {
	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(zapLevel(level))
	zapConfig.Sampling = nil

	logger, err := zapConfig.Build()
	if err != nil {
		return zap.NewNop()
	}

	return logger.Named("gotd")
}

func zapLevel(level slog.Level) zapcore.Level {
	switch {
	case level <= slog.LevelDebug:
		return zapcore.DebugLevel
	case level <= slog.LevelInfo:
		return zapcore.InfoLevel
	case level <= slog.LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}
