package handlers

import (
	"github.com/go-ldap/ldap/v3"
	"github.com/nslcdgo/nslcdgo/internal/filter"
	"github.com/nslcdgo/nslcdgo/internal/invalidator"
	"github.com/nslcdgo/nslcdgo/internal/ldappool"
	"github.com/nslcdgo/nslcdgo/internal/nslcderr"
	"github.com/nslcdgo/nslcdgo/internal/router"
	"github.com/nslcdgo/nslcdgo/internal/search"
)

// Usermod services USERMOD: changes a user's LDAP password directly (used by
// passwd(1) rather than through the PAM stack), gated on caller uid == 0 or
// a matching old password, per SPEC_FULL.md §5.1 (original_source:
// nslcd/usermod.c). Unlike pam.Pwmod, no shadow/expiry policy is applied.
func Usermod(req *router.Request) error {
	username, err := req.In.ReadString()
	if err != nil {
		return err
	}
	if !req.Config.ValidName(username) {
		req.Log.Debug().Str("name", username).Msg("handlers: rejected invalid name")
		return req.Out.WriteInt32(int32(nslcderr.NotFound))
	}
	oldPassword, err := req.In.ReadString()
	if err != nil {
		return err
	}
	newPassword, err := req.In.ReadString()
	if err != nil {
		return err
	}

	am := req.AttrMap
	f := filter.And(am.ObjectClass("passwd"), filter.Equals(am.Resolve("passwd", "uid"), username))

	s, err := search.Open(req.Session, search.Options{
		Bases:  req.Config.BasesFor("passwd"),
		Filter: f,
		Attrs:  []string{"dn"},
	})
	if err != nil {
		return err
	}
	entry, ok, err := s.Next(req.Ctx)
	s.Close()
	if err != nil {
		return err
	}
	if !ok {
		return req.Out.WriteInt32(int32(nslcderr.NotFound))
	}

	if !req.Peer.IsRoot() {
		conn, err := req.Session.Conn(false)
		if err != nil {
			return err
		}
		if err := conn.Bind(entry.DN, oldPassword); err != nil {
			return req.Out.WriteInt32(int32(ldappool.Classify(err)))
		}
	}

	conn, err := req.Session.Conn(req.Peer.IsRoot())
	if err != nil {
		return err
	}

	modReq := ldap.NewPasswordModifyRequest(entry.DN, oldPassword, newPassword)
	if _, err := conn.PasswordModify(modReq); err != nil {
		return req.Out.WriteInt32(int32(ldappool.Classify(err)))
	}

	req.Invalidator.Invalidate(invalidator.Shadow)

	return req.Out.WriteInt32(int32(nslcderr.Success))
}
