package mtproto

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

func TestConfigNormalize(t *testing.T) {
	t.Parallel()

	valid := Config{AppID: 1, AppHash: " hash ", Token: " 1:abc "}

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "defaults applied", cfg: valid},
		{name: "missing app id", cfg: Config{AppHash: "hash", Token: "1:abc"}, wantErr: true},
		{name: "missing app hash", cfg: Config{AppID: 1, Token: "1:abc"}, wantErr: true},
		{name: "missing token", cfg: Config{AppID: 1, AppHash: "hash"}, wantErr: true},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got, err := testCase.cfg.normalize()
			if testCase.wantErr {
				if err == nil {
					t.Fatal("normalize error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("normalize error = %v", err)
			}
			if got.AppHash != "hash" || got.Token != "1:abc" {
				t.Fatalf("normalize did not trim: %+v", got)
			}
			if got.SessionFile != defaultSessionFile {
				t.Fatalf("session file = %q, want %q", got.SessionFile, defaultSessionFile)
			}
			if got.UpdateBuffer != defaultUpdateBuffer || got.RPCTimeout != 10*time.Second {
				t.Fatalf("defaults = %+v", got)
			}
		})
	}
}

func TestNewSessionStorageCreatesDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "session.json")
	storage, err := newSessionStorage(path)
	if err != nil {
		t.Fatalf("newSessionStorage error = %v", err)
	}
	if storage.Path != path {
		t.Fatalf("path = %q, want %q", storage.Path, path)
	}
}

func TestZapLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level slog.Level
		want  zapcore.Level
	}{
		{level: slog.LevelDebug, want: zapcore.DebugLevel},
		{level: slog.LevelInfo, want: zapcore.InfoLevel},
		{level: slog.LevelWarn, want: zapcore.WarnLevel},
		{level: slog.LevelError, want: zapcore.ErrorLevel},
	}

	for _, testCase := range tests {
		if got := zapLevel(testCase.level); got != testCase.want {
			t.Fatalf("zapLevel(%v) = %v, want %v", testCase.level, got, testCase.want)
		}
	}
}
