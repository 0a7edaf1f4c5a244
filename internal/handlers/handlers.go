// Package handlers implements the per-entity NSS/PAM lookup handlers: each
// translates a decoded request plus Config/AttrMap into one or more Search
// iterations and streams BEGIN...entry...END records through the
// RequestRouter's protocol.Writer, per spec §2 and §4.7 (original_source
// per-entity C sources: passwd.c, group.c, shadow.c, host.c, network.c,
// service.c, protocol.c, rpc.c, ether.c, alias.c, netgroup.c,
// ldap-automount.c, translated from the NSLCD_HANDLE macro pattern into this
// shared run helper).
package handlers

import (
	"strconv"

	"github.com/go-ldap/ldap/v3"
	"github.com/nslcdgo/nslcdgo/internal/nslcderr"
	"github.com/nslcdgo/nslcdgo/internal/router"
	"github.com/nslcdgo/nslcdgo/internal/search"
)

// writeEntry is the subset of entry-writing behavior each handler needs; kept as
// a plain function type passed into run rather than an interface, since
// every handler writes a different field shape. write owns its own
// WriteBegin calls: it must emit exactly one BEGIN per record it produces,
// including zero times for a directory entry that yields no record at all
// (e.g. a services entry whose ipServiceProtocol values don't include the
// one the caller asked for) and more than once for an entry that fans out
// into several records (services' per-protocol records).
type writeEntry func(req *router.Request, entry *ldap.Entry) error

// run opens a Search over bases/filter/attrs, streams entry records for
// every result via write, and ends the stream with END. END carries no
// status code: a failed search's mapped status is only logged. Shared by
// every by-name/by-key/all handler (spec §2 Handlers responsibility).
func run(req *router.Request, opts search.Options, write writeEntry) error {
	s, err := search.Open(req.Session, opts)
	if err != nil {
		req.Log.Error().Err(err).Msg("handlers: open search failed")
		return req.Out.WriteEnd()
	}
	defer s.Close()

	for {
		entry, ok, err := s.Next(req.Ctx)
		if err != nil {
			status := nslcderr.StatusOf(err)
			if status == nslcderr.NotFound {
				req.Log.Debug().Msg("handlers: entry not found")
			} else if status == nslcderr.Unavailable {
				req.Log.Warn().Err(err).Msg("handlers: search failed mid-stream")
			} else {
				req.Log.Error().Err(err).Msg("handlers: search failed mid-stream")
			}
			break
		}
		if !ok {
			break
		}

		if err := write(req, entry.Entry); err != nil {
			return err
		}
	}

	return req.Out.WriteEnd()
}

// requireValidName denies with an empty response (END, no records, no status
// code), before any filter is built or directory consulted, when name fails
// the configured validity rule (spec
// §4.5 step 2: caller-supplied names/keys are validated up front). Callers
// should return immediately when ok is false.
func requireValidName(req *router.Request, name string) (ok bool, err error) {
	if req.Config.ValidName(name) {
		return true, nil
	}
	req.Log.Debug().Str("name", name).Msg("handlers: rejected invalid name")
	return false, req.Out.WriteEnd()
}

// writeOneRecord wraps a single-record writeEntry body with its BEGIN
// marker, for the common case of one directory entry producing exactly one
// response record.
func writeOneRecord(req *router.Request, body func() error) error {
	if err := req.Out.WriteBegin(); err != nil {
		return err
	}
	return body()
}

// passwordField applies the "x" / "*" masking rule shared by passwd and
// shadow handlers (spec §4.5: "the password field is x when the entry is
// also shadowAccount ... When the caller uid != 0 the password field is
// forced to *").
func passwordField(req *router.Request, entry *ldap.Entry, userPasswordAttr string) string {
	if !req.Peer.IsRoot() {
		return "*"
	}

	if hasObjectClass(entry, "shadowAccount") {
		return "x"
	}

	raw := entry.GetAttributeValue(userPasswordAttr)
	return stripCryptPrefix(raw)
}

func hasObjectClass(entry *ldap.Entry, name string) bool {
	for _, oc := range entry.GetAttributeValues("objectClass") {
		if equalFold(oc, name) {
			return true
		}
	}
	return false
}

func stripCryptPrefix(raw string) string {
	for _, prefix := range []string{"{CRYPT}", "CRYPT$"} {
		if len(raw) >= len(prefix) && equalFold(raw[:len(prefix)], prefix) {
			return raw[len(prefix):]
		}
	}
	return raw
}

// itoa/atoi32 wrap strconv for the handful of directory-numeric fields
// (uidNumber, gidNumber, ...) that are integers by schema but carried as
// LDAP attribute strings.
func itoa(n int) string { return strconv.Itoa(n) }

func atoi32(s string) int32 {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0
	}
	return int32(n)
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
