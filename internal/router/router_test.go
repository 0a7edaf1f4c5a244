package router

import (
	"errors"
	"testing"

	"github.com/nslcdgo/nslcdgo/internal/protocol"
)

func TestDispatchInvokesRegisteredHandler(t *testing.T) {
	r := New()
	called := false
	r.Register(protocol.ActionPasswdByName, func(req *Request) error {
		called = true
		return nil
	})

	err := r.Dispatch(&Request{Header: protocol.Header{Action: protocol.ActionPasswdByName}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatalf("expected handler to be invoked")
	}
}

func TestDispatchUnknownActionIsMalformed(t *testing.T) {
	r := New()
	err := r.Dispatch(&Request{Header: protocol.Header{Action: protocol.ActionUsermod}})
	if !errors.Is(err, protocol.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestPeerCredsIsRoot(t *testing.T) {
	if !(PeerCreds{UID: 0}).IsRoot() {
		t.Fatalf("expected uid 0 to be root")
	}
	if (PeerCreds{UID: 1000}).IsRoot() {
		t.Fatalf("expected uid 1000 not to be root")
	}
}
