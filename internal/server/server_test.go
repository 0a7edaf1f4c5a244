package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nslcdgo/nslcdgo/internal/config"
	"github.com/nslcdgo/nslcdgo/internal/logging"
)

func TestNewAcceptorCreatesSocketWithMode(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "nslcdgo.sock")

	cfg := config.Defaults()
	cfg.SocketPath = sockPath
	cfg.SocketMode = 0o666

	a, err := NewAcceptor(cfg, logging.New(logging.Options{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Close()

	info, err := os.Stat(sockPath)
	if err != nil {
		t.Fatalf("expected socket file to exist: %v", err)
	}
	if info.Mode().Perm() != 0o666 {
		t.Fatalf("expected mode 0666, got %o", info.Mode().Perm())
	}
}

func TestAcceptorCloseUnlinksSocket(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "nslcdgo.sock")

	cfg := config.Defaults()
	cfg.SocketPath = sockPath

	a, err := NewAcceptor(cfg, logging.New(logging.Options{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a.Close()

	if _, err := os.Stat(sockPath); !os.IsNotExist(err) {
		t.Fatalf("expected socket file to be removed, stat err: %v", err)
	}
}

func TestAcceptRespectsContextCancellation(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "nslcdgo.sock")

	cfg := config.Defaults()
	cfg.SocketPath = sockPath

	a, err := NewAcceptor(cfg, logging.New(logging.Options{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = a.Accept(ctx)
	if err == nil {
		t.Fatalf("expected context deadline error")
	}
}
