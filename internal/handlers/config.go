package handlers

import (
	"github.com/nslcdgo/nslcdgo/internal/protocol"
	"github.com/nslcdgo/nslcdgo/internal/router"
)

// ConfigGet services CONFIG_GET: a request-less action returning the
// negotiated protocol version so an NSS shim can detect daemon
// compatibility, per SPEC_FULL.md §5.1 (original_source: nslcd/config.c).
func ConfigGet(req *router.Request) error {
	if err := req.Out.WriteBegin(); err != nil {
		return err
	}
	if err := req.Out.WriteUint32(protocol.Version); err != nil {
		return err
	}
	return req.Out.WriteEnd()
}
