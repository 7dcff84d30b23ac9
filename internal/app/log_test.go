package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLineHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		opID    string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			opID:    "op-123",
			level:   slog.LevelInfo,
			message: "document verified",
			want:    "2024-06-15T14:30:45Z\tINFO\top-123\tdocument verified\n",
		},
		{
			name:    "debug level",
			opID:    "op-456",
			level:   slog.LevelDebug,
			message: "verifying file",
			want:    "2024-06-15T14:30:45Z\tDEBUG\top-456\tverifying file\n",
		},
		{
			name:    "with record attrs",
			opID:    "op-789",
			level:   slog.LevelInfo,
			message: "document issued",
			attrs:   []slog.Attr{slog.String("hash", "ab12"), slog.Int("block", 42)},
			want:    "2024-06-15T14:30:45Z\tINFO\top-789\tdocument issued\thash=ab12\tblock=42\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &lineHandler{w: &buf, opID: tt.opID, level: slog.LevelDebug}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			r.AddAttrs(tt.attrs...)

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestLineHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	h := &lineHandler{w: &buf, opID: "op-1"}

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "vault")}).WithGroup("s3")

	r := slog.NewRecord(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), slog.LevelInfo, "upload", 0)
	r.AddAttrs(slog.String("key", "abc"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "\tcomponent=vault") {
		t.Errorf("expected pre-set attr component=vault, got: %q", got)
	}
	if !strings.Contains(got, "\ts3.key=abc") {
		t.Errorf("expected grouped attr s3.key=abc, got: %q", got)
	}
	if len(h.attrs) != 0 || h.prefix != "" {
		t.Errorf("original handler modified: %+v", h)
	}
}

func TestLineHandler_Enabled(t *testing.T) {
	h := &lineHandler{level: slog.LevelWarn}
	for level, want := range map[slog.Level]bool{
		slog.LevelDebug: false,
		slog.LevelInfo:  false,
		slog.LevelWarn:  true,
		slog.LevelError: true,
	} {
		if got := h.Enabled(context.Background(), level); got != want {
			t.Errorf("Enabled(%v) = %v, want %v", level, got, want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantConsole []string
	}{
		{name: "quiet console", verbose: false, wantConsole: []string{"ledger unreachable"}},
		{name: "verbose console", verbose: true, wantConsole: []string{"checking record", "ledger unreachable"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			var console bytes.Buffer

			logger, f, err := newLogger(dir, "test-op", &console, tt.verbose)
			if err != nil {
				t.Fatalf("newLogger() error = %v", err)
			}
			logger.Debug("checking record", "hash", "ab12")
			logger.Warn("ledger unreachable")
			f.Close()

			file, err := os.ReadFile(filepath.Join(dir, "docverify.log"))
			if err != nil {
				t.Fatalf("reading log file: %v", err)
			}
			if n := strings.Count(string(file), "\n"); n != 2 {
				t.Errorf("log file has %d lines, want 2:\n%s", n, file)
			}

			lines := strings.Split(strings.TrimSpace(console.String()), "\n")
			if len(lines) != len(tt.wantConsole) {
				t.Fatalf("console lines = %q, want %d", lines, len(tt.wantConsole))
			}
			for i, msg := range tt.wantConsole {
				if !strings.Contains(lines[i], "\ttest-op\t"+msg) {
					t.Errorf("console line %d = %q, want message %q", i, lines[i], msg)
				}
			}
		})
	}
}
