package handlers

import (
	"time"

	"github.com/nslcdgo/nslcdgo/internal/audit"
	"github.com/nslcdgo/nslcdgo/internal/invalidator"
	"github.com/nslcdgo/nslcdgo/internal/nslcderr"
	"github.com/nslcdgo/nslcdgo/internal/pam"
	"github.com/nslcdgo/nslcdgo/internal/router"
)

// auditFailure records a denied/failed PAM outcome to the audit log, a
// no-op when req.Audit is nil.
func auditFailure(req *router.Request, action, rhost string, res pam.AuthcResult) {
	if res.Status == nslcderr.Success && res.AuthzStatus == nslcderr.Success {
		return
	}
	status := res.Status
	if status == nslcderr.Success {
		status = res.AuthzStatus
	}
	req.Audit.Log(audit.Record{
		Timestamp: time.Now(),
		Action:    action,
		Username:  res.Username,
		RHost:     rhost,
		Status:    status.String(),
		Message:   res.Message,
	})
}

// writeAuthcResult encodes an AuthcResult the way every PAM_* action reports
// its outcome: status, canonical username, authorization status, message
// (spec §4.6, original_source: nslcd/pam.c's NSLCD_PAM_* response shapes).
func writeAuthcResult(req *router.Request, res pam.AuthcResult) error {
	if err := req.Out.WriteInt32(int32(res.Status)); err != nil {
		return err
	}
	if err := req.Out.WriteString(res.Username); err != nil {
		return err
	}
	if err := req.Out.WriteInt32(int32(res.AuthzStatus)); err != nil {
		return err
	}
	return req.Out.WriteString(res.Message)
}

// PAMAuthc services PAM_AUTHC: authenticates a username/password pair
// against the directory (spec §4.6 Authc).
func PAMAuthc(req *router.Request) error {
	username, err := req.In.ReadString()
	if err != nil {
		return err
	}
	service, err := req.In.ReadString()
	if err != nil {
		return err
	}
	ruser, err := req.In.ReadString()
	if err != nil {
		return err
	}
	rhost, err := req.In.ReadString()
	if err != nil {
		return err
	}
	tty, err := req.In.ReadString()
	if err != nil {
		return err
	}
	password, err := req.In.ReadString()
	if err != nil {
		return err
	}

	res, err := pam.Authc(req.Ctx, req.Session, req.Config, req.AttrMap, req.Nsswitch, pam.AuthcRequest{
		Username:     username,
		Service:      service,
		RUser:        ruser,
		RHost:        rhost,
		TTY:          tty,
		Password:     password,
		CallerIsRoot: req.Peer.IsRoot(),
	})
	if err != nil {
		req.Log.Error().Err(err).Msg("handlers: pam authc failed")
		return writeAuthcResult(req, pam.AuthcResult{Status: nslcderr.StatusOf(err), Username: username})
	}
	auditFailure(req, "authc", rhost, res)
	return writeAuthcResult(req, res)
}

// PAMAuthz services PAM_AUTHZ: evaluates the configured authorization search
// templates and shadow expiry for an already-authenticated user (spec §4.6
// Authz).
func PAMAuthz(req *router.Request) error {
	username, err := req.In.ReadString()
	if err != nil {
		return err
	}
	service, err := req.In.ReadString()
	if err != nil {
		return err
	}
	ruser, err := req.In.ReadString()
	if err != nil {
		return err
	}
	rhost, err := req.In.ReadString()
	if err != nil {
		return err
	}
	hostname, err := req.In.ReadString()
	if err != nil {
		return err
	}
	fqdn, err := req.In.ReadString()
	if err != nil {
		return err
	}
	domain, err := req.In.ReadString()
	if err != nil {
		return err
	}
	dn, err := req.In.ReadString()
	if err != nil {
		return err
	}
	uid, err := req.In.ReadString()
	if err != nil {
		return err
	}

	res, err := pam.Authz(req.Ctx, req.Session, req.Config, req.AttrMap, req.Nsswitch, pam.AuthzRequest{
		Username: username,
		Service:  service,
		RUser:    ruser,
		RHost:    rhost,
		Hostname: hostname,
		FQDN:     fqdn,
		Domain:   domain,
		DN:       dn,
		UID:      uid,
	})
	if err != nil {
		req.Log.Error().Err(err).Msg("handlers: pam authz failed")
		return writeAuthcResult(req, pam.AuthcResult{Status: nslcderr.StatusOf(err), Username: username})
	}
	auditFailure(req, "authz", rhost, res)
	return writeAuthcResult(req, res)
}

// PAMSessO services PAM_SESS_O: opens a PAM session, returning a fresh
// session identifier (spec §4.6, original_source: nslcd/pam.c
// pam_session_open). There is no directory state tied to a session; the id
// only needs to be unique and correlate open/close pairs in logs.
func PAMSessO(req *router.Request) error {
	username, err := req.In.ReadString()
	if err != nil {
		return err
	}
	if _, err := req.In.ReadString(); err != nil { // service
		return err
	}
	if _, err := req.In.ReadString(); err != nil { // tty
		return err
	}
	if _, err := req.In.ReadString(); err != nil { // rhost
		return err
	}
	if _, err := req.In.ReadString(); err != nil { // ruser
		return err
	}

	id, err := pam.SessionID()
	if err != nil {
		req.Log.Error().Err(err).Msg("handlers: generate pam session id failed")
		if err := req.Out.WriteInt32(int32(nslcderr.Internal)); err != nil {
			return err
		}
		return req.Out.WriteString("")
	}

	req.Log.Info().Str("username", username).Str("session_id", id).Msg("handlers: pam session opened")

	if err := req.Out.WriteInt32(int32(nslcderr.Success)); err != nil {
		return err
	}
	return req.Out.WriteString(id)
}

// PAMSessC services PAM_SESS_C: closes a previously opened PAM session. This
// protocol carries no server-side session table to tear down; closing is
// acknowledged for symmetry with PAM_SESS_O and to produce a paired log
// entry.
func PAMSessC(req *router.Request) error {
	sessionID, err := req.In.ReadString()
	if err != nil {
		return err
	}

	req.Log.Info().Str("session_id", sessionID).Msg("handlers: pam session closed")

	return req.Out.WriteInt32(int32(nslcderr.Success))
}

// PAMPwmod services PAM_PWMOD: changes a user's password and updates the
// shadow-last-change attribute (spec §4.6 Pwmod).
func PAMPwmod(req *router.Request) error {
	username, err := req.In.ReadString()
	if err != nil {
		return err
	}
	oldPassword, err := req.In.ReadString()
	if err != nil {
		return err
	}
	newPassword, err := req.In.ReadString()
	if err != nil {
		return err
	}

	res, err := pam.Pwmod(req.Ctx, req.Session, req.Config, req.AttrMap, pam.PwmodRequest{
		Username:     username,
		OldPassword:  oldPassword,
		NewPassword:  newPassword,
		CallerIsRoot: req.Peer.IsRoot(),
	})
	if err != nil {
		req.Log.Error().Err(err).Msg("handlers: pam pwmod failed")
		return writeAuthcResult(req, pam.AuthcResult{Status: nslcderr.StatusOf(err), Username: username})
	}
	if res.Status == nslcderr.Success {
		req.Invalidator.Invalidate(invalidator.Shadow)
	}
	auditFailure(req, "pwmod", "", res)
	return writeAuthcResult(req, res)
}
