// Package router dispatches a decoded protocol action to the handler that
// services it, supplying the handler with the calling worker's LdapPool
// session and the peer's credentials, per spec §2 ("RequestRouter:
// Dispatches a decoded action to a handler").
package router

import (
	"context"
	"fmt"

	"github.com/nslcdgo/nslcdgo/internal/attrmap"
	"github.com/nslcdgo/nslcdgo/internal/audit"
	"github.com/nslcdgo/nslcdgo/internal/config"
	"github.com/nslcdgo/nslcdgo/internal/invalidator"
	"github.com/nslcdgo/nslcdgo/internal/ldappool"
	"github.com/nslcdgo/nslcdgo/internal/logging"
	"github.com/nslcdgo/nslcdgo/internal/nsswitch"
	"github.com/nslcdgo/nslcdgo/internal/protocol"
)

// PeerCreds carries the credentials of the process on the other end of the
// UNIX socket, probed via SO_PEERCRED by the Acceptor (spec §6 "Peer
// credentials").
type PeerCreds struct {
	UID uint32
	GID uint32
	PID int32
}

// IsRoot reports whether the peer's effective uid is 0.
func (p PeerCreds) IsRoot() bool { return p.UID == 0 }

// Request bundles everything a Handler needs: the decoded header, a reader
// positioned just after it, the response writer, the caller's session and
// credentials, and a per-request logging scope.
type Request struct {
	Ctx     context.Context
	Header  protocol.Header
	In      *protocol.Reader
	Out     *protocol.Writer
	Session *ldappool.Session
	Config  *config.Config
	AttrMap *attrmap.Map
	Peer    PeerCreds
	Log     *logging.RequestScope

	// Invalidator is nil-safe: a handler may call req.Invalidator.Invalidate
	// even when the daemon was started without an invalidator command
	// configured.
	Invalidator *invalidator.Channel

	// Audit is nil-safe: a handler may call req.Audit.Log even when the
	// daemon was started without an audit log path configured.
	Audit *audit.Logger

	// Nsswitch is nil-safe: a handler that consults it treats a nil policy
	// as "always check shadow expiry against LDAP".
	Nsswitch *nsswitch.Policy
}

// Handler services one action, reading its request-specific parameters from
// req.In and writing BEGIN...END records via req.Out.
type Handler func(req *Request) error

// Router maps an Action to its Handler.
type Router struct {
	handlers map[protocol.Action]Handler
}

// New creates an empty Router.
func New() *Router {
	return &Router{handlers: make(map[protocol.Action]Handler)}
}

// Register binds a Handler to an Action, overwriting any prior registration.
func (r *Router) Register(action protocol.Action, h Handler) {
	r.handlers[action] = h
}

// Dispatch looks up and invokes the handler for req.Header.Action. An
// unregistered action is itself a protocol-level error, per spec §7: a
// malformed or unsupported request closes the connection.
func (r *Router) Dispatch(req *Request) error {
	h, ok := r.handlers[req.Header.Action]
	if !ok {
		return fmt.Errorf("%w: unknown action %d", protocol.ErrMalformed, req.Header.Action)
	}
	return h(req)
}
