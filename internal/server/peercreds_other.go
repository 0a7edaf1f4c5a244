//go:build !linux

package server

import (
	"fmt"
	"net"

	"github.com/nslcdgo/nslcdgo/internal/router"
)

// peerCreds has no portable equivalent outside Linux's SO_PEERCRED; this
// daemon targets Linux hosts (spec's UNIX-domain socket NSS/PAM broker is a
// Linux-specific facility), so other platforms report an error rather than
// silently trusting an unauthenticated peer.
func peerCreds(conn *net.UnixConn) (router.PeerCreds, error) {
	return router.PeerCreds{}, fmt.Errorf("server: peer credential probing is not implemented on this platform")
}
