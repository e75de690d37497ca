package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"defaults", Options{}, false},
		{"console debug", Options{Level: "debug", Format: "console"}, false},
		{"json warn", Options{Level: "warn", Format: "json"}, false},
		{"bad level", Options{Level: "loud"}, true},
		{"bad format", Options{Format: "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLogger(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewLogger() error = %v, wantErr %v", err, tt.wantErr)
			}
			if l != nil {
				_ = l.Sync()
			}
		})
	}
}

func TestNewLoggerDebugFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	l, err := NewLogger(Options{Level: "debug", DebugFile: path})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	l.Debug("swap attempted", zap.String("account", "work"))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read debug file: %v", err)
	}
	if !strings.Contains(string(data), "swap attempted") {
		t.Errorf("debug file missing entry: %q", string(data))
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext should never return nil")
	}

	l := zap.NewExample()
	ctx := ContextWithLogger(context.Background(), l)
	if FromContext(ctx) != l {
		t.Error("FromContext should return the stored logger")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Error("OrNop(nil) should return a logger")
	}
	l := zap.NewExample()
	if OrNop(l) != l {
		t.Error("OrNop should pass through a non-nil logger")
	}
}
