package metrics

import (
	"testing"
	"time"
)

func TestNewAndSnapshot(t *testing.T) {
	m := New()
	if time.Since(m.Start) > time.Second {
		t.Fatalf("unexpected start time: %v", m.Start)
	}

	m.Requests.Add(2)
	m.Success.Add(1)
	m.Fail.Add(1)

	req, suc, fal, el := m.Snapshot()
	if req != 2 || suc != 1 || fal != 1 {
		t.Fatalf("snapshot mismatch: got %d/%d/%d", req, suc, fal)
	}

	if el <= 0 {
		t.Fatalf("elapsed should be > 0, got %v", el)
	}
}
