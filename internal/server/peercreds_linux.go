//go:build linux

package server

import (
	"fmt"
	"net"

	"github.com/nslcdgo/nslcdgo/internal/router"
	"golang.org/x/sys/unix"
)

// peerCreds probes the calling process's uid/gid/pid via SO_PEERCRED, per
// spec §6 ("SO_PEERCRED (or equivalent) gives uid/gid/pid").
func peerCreds(conn *net.UnixConn) (router.PeerCreds, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return router.PeerCreds{}, fmt.Errorf("server: get raw conn: %w", err)
	}

	var ucred *unix.Ucred
	var sockErr error

	err = raw.Control(func(fd uintptr) {
		ucred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return router.PeerCreds{}, fmt.Errorf("server: control raw conn: %w", err)
	}
	if sockErr != nil {
		return router.PeerCreds{}, fmt.Errorf("server: SO_PEERCRED: %w", sockErr)
	}

	return router.PeerCreds{UID: ucred.Uid, GID: ucred.Gid, PID: ucred.Pid}, nil
}
