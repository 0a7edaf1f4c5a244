package audit

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoggerWriteAndClose(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "audit.csv")

	l := New(p, 2)
	if l == nil {
		t.Fatal("expected non-nil logger")
	}

	l.Log(Record{Timestamp: time.Now(), Action: "authc", Username: "alice", Status: "permission denied", Message: "account expired"})
	l.Log(Record{Timestamp: time.Now(), Action: "pwmod", Username: "bob", Status: "permission denied", Message: "password rejected"})

	l.Close()

	f, err := os.Open(p)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(lines) < 3 {
		t.Fatalf("expected at least 3 lines, got %d", len(lines))
	}
	if want := "timestamp,action,username,rhost,status,message"; !strings.Contains(lines[0], want) {
		t.Fatalf("missing header, got: %q", lines[0])
	}
}

func TestLoggerNilPathIsNoop(t *testing.T) {
	l := New("", 10)
	if l != nil {
		t.Fatalf("expected nil logger for empty path")
	}
	l.Log(Record{Action: "authc"})
	l.Close()
}
