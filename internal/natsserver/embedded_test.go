package natsserver

import (
	"io"
	"log/slog"
	"testing"

	"github.com/loqalabs/loqa-caption/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestStartDisabled(t *testing.T) {
	srv, err := Start("test", config.BusConfig{Embedded: false}, newLogger())
	if err != nil || srv != nil {
		t.Fatalf("expected nil server, got %v %v", srv, err)
	}
	srv.Shutdown()
	if srv.ClientURL() != "" {
		t.Fatal("nil server should have no url")
	}
}

func TestStartEmbedded(t *testing.T) {
	srv, err := Start("test", config.BusConfig{Embedded: true, Port: -1, StoreDir: t.TempDir(), MaxStoreMB: 16}, newLogger())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.Shutdown()
	if srv.ClientURL() == "" {
		t.Fatal("expected client url")
	}
}
