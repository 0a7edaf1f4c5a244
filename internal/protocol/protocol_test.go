package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteHeader(Header{Version: Version, Action: ActionPasswdByName}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := NewReader(&buf)
	h, err := r.ReadHeader()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Version != Version || h.Action != ActionPasswdByName {
		t.Fatalf("header mismatch: %+v", h)
	}
}

func TestStringRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteString("alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w.Flush()

	r := NewReader(&buf)
	s, err := r.ReadString()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != "alice" {
		t.Fatalf("expected alice, got %q", s)
	}
}

func TestStringListRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	want := []string{"alice", "bob", "carol"}
	if err := w.WriteStringList(want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w.Flush()

	r := NewReader(&buf)
	got, err := r.ReadStringList()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestNullTerminatedListRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, s := range []string{"eth0", "eth1"} {
		w.WriteString(s)
	}
	w.WriteString("")
	w.Flush()

	r := NewReader(&buf)
	got, err := r.ReadNullTerminatedList()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "eth0" || got[1] != "eth1" {
		t.Fatalf("unexpected list: %v", got)
	}
}

func TestReadStringRejectsOversizeLength(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteUint32(maxReadString + 1)
	w.Flush()

	r := NewReader(&buf)
	if _, err := r.ReadString(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestReadStringTruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteUint32(10)
	w.w.WriteString("short")
	w.Flush()

	r := NewReader(&buf)
	if _, err := r.ReadString(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for truncated frame, got %v", err)
	}
}

func TestAddressRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteInt32(2)
	w.WriteUint32(4)
	w.w.Write([]byte{127, 0, 0, 1})
	w.Flush()

	r := NewReader(&buf)
	addr, err := r.ReadAddress()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr.Family != 2 || !bytes.Equal(addr.Bytes, []byte{127, 0, 0, 1}) {
		t.Fatalf("unexpected address: %+v", addr)
	}
}

func TestBeginEndMarkers(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteBegin()
	w.WriteEnd()
	w.Flush()

	r := NewReader(&buf)
	begin, _ := r.ReadUint32()
	end, _ := r.ReadUint32()
	if begin != RecordBegin || end != RecordEnd {
		t.Fatalf("expected BEGIN/END markers, got %d/%d", begin, end)
	}
}
