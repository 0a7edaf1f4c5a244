// Package pam implements the shadow-expiry checks and PAM
// authc/authz/pwmod/session handlers described in spec §4.6: authenticate a
// caller against the directory, authorize them against a configurable set of
// filter templates, and apply account/password expiration policy.
package pam

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
	"github.com/nslcdgo/nslcdgo/internal/attrmap"
	"github.com/nslcdgo/nslcdgo/internal/config"
	"github.com/nslcdgo/nslcdgo/internal/filter"
	"github.com/nslcdgo/nslcdgo/internal/ldappool"
	"github.com/nslcdgo/nslcdgo/internal/nslcderr"
	"github.com/nslcdgo/nslcdgo/internal/nsswitch"
	"github.com/nslcdgo/nslcdgo/internal/search"
)

// ufDontExpirePasswd is the Active Directory userAccountControl-derived bit
// nslcd recognizes in shadowFlag (spec §4.5: "forces shadowMax=-1 and clears
// the flag").
const ufDontExpirePasswd = 0x10000

// Shadow holds the parsed shadow-expiry fields for one account, all in
// days-since-epoch form (spec §4.5/§4.6). A value of -1 means "not set".
type Shadow struct {
	LastChange int
	Min        int
	Max        int
	Warn       int
	Inactive   int
	Expire     int
	Flag       int
}

// ParseShadow reads the shadowXxx attribute expressions out of entry,
// applying the AD pwdLastSet conversion and the UF_DONT_EXPIRE_PASSWD
// override, per spec §4.5.
func ParseShadow(am *attrmap.Map, entry *ldap.Entry) Shadow {
	sh := Shadow{LastChange: -1, Min: -1, Max: -1, Warn: -1, Inactive: -1, Expire: -1, Flag: 0}

	if v := attrString(am, entry, "shadowLastChange"); v != "" {
		sh.LastChange = atoiDefault(v, -1)
	}
	if v := attrString(am, entry, "shadowMin"); v != "" {
		sh.Min = atoiDefault(v, -1)
	}
	if v := attrString(am, entry, "shadowMax"); v != "" {
		sh.Max = atoiDefault(v, -1)
	}
	if v := attrString(am, entry, "shadowWarning"); v != "" {
		sh.Warn = atoiDefault(v, -1)
	}
	if v := attrString(am, entry, "shadowInactive"); v != "" {
		sh.Inactive = atoiDefault(v, -1)
	}
	if v := attrString(am, entry, "shadowExpire"); v != "" {
		sh.Expire = atoiDefault(v, -1)
	}
	if v := attrString(am, entry, "shadowFlag"); v != "" {
		sh.Flag = atoiDefault(v, 0)
	}

	if pls := am.Eval("shadow", "pwdLastSet", entry); pls != "" {
		if days, ok := PwdLastSetToDays(pls); ok {
			sh.LastChange = days
		}
	}

	if sh.Flag&ufDontExpirePasswd != 0 {
		sh.Max = -1
		sh.Flag &^= ufDontExpirePasswd
	}

	return sh
}

func attrString(am *attrmap.Map, entry *ldap.Entry, logical string) string {
	return am.Eval("shadow", logical, entry)
}

func atoiDefault(s string, def int) int {
	n := 0
	neg := false
	i := 0
	if len(s) > 0 && s[0] == '-' {
		neg = true
		i = 1
	}
	if i >= len(s) {
		return def
	}
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return def
		}
		n = n*10 + int(s[i]-'0')
	}
	if neg {
		n = -n
	}
	return n
}

// PwdLastSetToDays converts an Active Directory pwdLastSet value (100-ns
// intervals since 1601-01-01) to days-since-1970, per spec §4.5:
// `val/864e9 − 134774`.
func PwdLastSetToDays(raw string) (int, bool) {
	var val int64
	n, err := fmt.Sscanf(raw, "%d", &val)
	if n != 1 || err != nil {
		return 0, false
	}
	return int(val/864e9) - 134774, true
}

// DaysToPwdLastSet is the inverse of PwdLastSetToDays, used by Pwmod when
// writing back an AD-mapped shadow-last-change attribute.
func DaysToPwdLastSet(days int) int64 {
	return (int64(days) + 134774) * 864e9
}

// Today returns the current day count since 1970-01-01 UTC, the unit all
// shadow expiry fields are expressed in.
func Today() int {
	return int(time.Now().UTC().Unix() / 86400)
}

// Decision is the outcome of a shadow-expiry check.
type Decision struct {
	Status  nslcderr.Status
	Message string
}

// ok reports the common "nothing to say" outcome.
func ok() Decision { return Decision{Status: nslcderr.Success} }

// CheckExpiry applies the account/password expiry rules of spec §4.6 against
// sh, evaluated at day `today`.
func CheckExpiry(sh Shadow, today int) Decision {
	if sh.Expire >= 0 && today >= sh.Expire {
		return Decision{
			Status:  nslcderr.PermissionDenied,
			Message: fmt.Sprintf("Account expired %d days ago", today-sh.Expire),
		}
	}

	if sh.Max < 0 {
		return ok()
	}

	if sh.LastChange == 0 {
		return Decision{Status: nslcderr.PermissionDenied, Message: "Need a new password"}
	}

	if today < sh.LastChange {
		return ok()
	}

	if sh.Max > 0 && today >= sh.LastChange+sh.Max {
		if sh.Inactive > 0 && today >= sh.LastChange+sh.Max+sh.Inactive {
			return Decision{Status: nslcderr.PermissionDenied, Message: "Account locked due to password aging"}
		}
		return Decision{Status: nslcderr.PermissionDenied, Message: "Password expired, must be changed"}
	}

	if sh.Warn > 0 && sh.Max > 0 {
		daysLeft := sh.LastChange + sh.Max - today
		if daysLeft >= 0 && daysLeft <= sh.Warn {
			return Decision{Status: nslcderr.Success, Message: fmt.Sprintf("Your password will expire in %d days", daysLeft)}
		}
	}

	return ok()
}

// CheckMinDays enforces the mindays password-change cooldown (spec §4.6
// check_mindays).
func CheckMinDays(sh Shadow, today int) Decision {
	if sh.Min > 0 && today < sh.LastChange+sh.Min {
		return Decision{
			Status:  nslcderr.PermissionDenied,
			Message: fmt.Sprintf("Password cannot be changed for another %d days", sh.LastChange+sh.Min-today),
		}
	}
	return ok()
}

// AuthcRequest carries the inputs to Authc, per spec §4.6.
type AuthcRequest struct {
	Username     string
	Service      string
	RUser        string
	RHost        string
	TTY          string
	Password     string
	CallerIsRoot bool
}

// AuthcResult is returned by Authc.
type AuthcResult struct {
	Status      nslcderr.Status
	Username    string
	AuthzStatus nslcderr.Status
	Message     string
}

// shadowExpiryEnabled reports whether expiry checks should consult the
// directory at all. When nsw is nil (no nsswitch policy configured) expiry
// checking is always on; otherwise it follows nsswitch.conf's shadow line,
// so the daemon doesn't deny logins based on stale LDAP shadow data when
// the host is actually configured to resolve shadow via sss or files.
func shadowExpiryEnabled(nsw *nsswitch.Policy) bool {
	return nsw == nil || nsw.ShadowUsesLDAP()
}

// Authc authenticates a caller against the directory per spec §4.6: either
// binds as the configured root-pwmod DN (empty username case) or looks up
// the user entry, rebinds the session with the supplied credentials, and
// applies an optional post-bind check plus shadow expiry.
func Authc(ctx context.Context, sess *ldappool.Session, cfg *config.Config, am *attrmap.Map, nsw *nsswitch.Policy, req AuthcRequest) (AuthcResult, error) {
	if req.Username == "" && cfg.RootPasswordModDN != "" {
		password := req.Password
		if req.CallerIsRoot && cfg.RootPasswordModPW != "" {
			password = cfg.RootPasswordModPW
		}
		if err := bindAs(sess, cfg.RootPasswordModDN, password); err != nil {
			return AuthcResult{Status: ldappool.Classify(err), Message: "Authentication failed"}, nil
		}
		return AuthcResult{Status: nslcderr.Success, Username: req.Username, AuthzStatus: nslcderr.Success}, nil
	}

	entry, err := lookupUser(ctx, sess, cfg, am, req.Username)
	if err != nil {
		return AuthcResult{}, err
	}
	if entry == nil {
		return AuthcResult{Status: nslcderr.NotFound, Message: "No such user"}, nil
	}

	canonicalUsername := am.Eval("passwd", "uid", entry)
	if canonicalUsername == "" {
		canonicalUsername = req.Username
	}

	if err := bindAs(sess, entry.DN, req.Password); err != nil {
		return AuthcResult{Status: ldappool.Classify(err), Username: canonicalUsername, Message: "Authentication failed"}, nil
	}

	if cfg.PamAuthcSearch != "" {
		vars := varsFor(req, cfg, entry.DN, canonicalUsername)
		f, err := expandTemplate(cfg.PamAuthcSearch, vars)
		if err != nil {
			return AuthcResult{}, nslcderr.New("pam.authc", nslcderr.Internal, err)
		}
		matched, err := anyBaseMatches(ctx, sess, cfg, f)
		if err != nil {
			return AuthcResult{}, err
		}
		if !matched {
			return AuthcResult{Status: nslcderr.PermissionDenied, Username: canonicalUsername, Message: "Access denied"}, nil
		}
	}

	decision := ok()
	if shadowExpiryEnabled(nsw) {
		sh := ParseShadow(am, entry)
		decision = CheckExpiry(sh, Today())
	}

	return AuthcResult{
		Status:      nslcderr.Success,
		Username:    canonicalUsername,
		AuthzStatus: decision.Status,
		Message:     decision.Message,
	}, nil
}

// AuthzRequest carries the inputs to Authz, per spec §4.6.
type AuthzRequest struct {
	Username string
	Service  string
	RUser    string
	RHost    string
	Hostname string
	FQDN     string
	Domain   string
	DN       string
	UID      string
}

// Authz evaluates the configured pam_authz_search filter templates in order;
// any failed or empty search denies, then shadow expiration is checked.
func Authz(ctx context.Context, sess *ldappool.Session, cfg *config.Config, am *attrmap.Map, nsw *nsswitch.Policy, req AuthzRequest) (AuthcResult, error) {
	vars := map[string]string{
		"username": req.Username,
		"service":  req.Service,
		"ruser":    req.RUser,
		"rhost":    req.RHost,
		"tty":      "",
		"hostname": req.Hostname,
		"fqdn":     req.FQDN,
		"domain":   req.Domain,
		"dn":       req.DN,
		"uid":      req.UID,
	}

	for _, tmpl := range cfg.PamAuthzSearch {
		f, err := expandTemplate(tmpl, vars)
		if err != nil {
			return AuthcResult{}, nslcderr.New("pam.authz", nslcderr.Internal, err)
		}
		matched, err := anyBaseMatches(ctx, sess, cfg, f)
		if err != nil {
			return AuthcResult{}, err
		}
		if !matched {
			return AuthcResult{Status: nslcderr.PermissionDenied, Username: req.Username, Message: "Access denied"}, nil
		}
	}

	entry, err := lookupUser(ctx, sess, cfg, am, req.Username)
	if err != nil {
		return AuthcResult{}, err
	}
	if entry == nil {
		return AuthcResult{Status: nslcderr.NotFound, Username: req.Username, Message: "No such user"}, nil
	}

	decision := ok()
	if shadowExpiryEnabled(nsw) {
		sh := ParseShadow(am, entry)
		decision = CheckExpiry(sh, Today())
	}

	return AuthcResult{
		Status:      nslcderr.Success,
		Username:    req.Username,
		AuthzStatus: decision.Status,
		Message:     decision.Message,
	}, nil
}

// PwmodRequest carries the inputs to Pwmod, per spec §4.6.
type PwmodRequest struct {
	Username     string
	OldPassword  string
	NewPassword  string
	CallerIsRoot bool
}

// Pwmod validates the user, rebinds with the old password, issues an LDAP
// EXOP password-modify, and on success updates the shadow-last-change
// attribute with today's day count (or the AD pwdLastSet equivalent).
func Pwmod(ctx context.Context, sess *ldappool.Session, cfg *config.Config, am *attrmap.Map, req PwmodRequest) (AuthcResult, error) {
	if cfg.PamPasswordProhibitMessage != "" {
		return AuthcResult{Status: nslcderr.PermissionDenied, Username: req.Username, Message: cfg.PamPasswordProhibitMessage}, nil
	}

	entry, err := lookupUser(ctx, sess, cfg, am, req.Username)
	if err != nil {
		return AuthcResult{}, err
	}
	if entry == nil {
		return AuthcResult{Status: nslcderr.NotFound, Username: req.Username, Message: "No such user"}, nil
	}

	if !req.CallerIsRoot {
		sh := ParseShadow(am, entry)
		if decision := CheckMinDays(sh, Today()); decision.Status != nslcderr.Success {
			return AuthcResult{Status: decision.Status, Username: req.Username, Message: decision.Message}, nil
		}
	}

	dn := entry.DN
	oldPassword := req.OldPassword
	if cfg.RootPasswordModDN != "" {
		dn = cfg.RootPasswordModDN
		if req.CallerIsRoot && cfg.RootPasswordModPW != "" {
			oldPassword = cfg.RootPasswordModPW
		}
	}

	if err := bindAs(sess, dn, oldPassword); err != nil {
		return AuthcResult{Status: ldappool.Classify(err), Username: req.Username, Message: "Authentication failed"}, nil
	}

	conn, err := sess.Conn(req.CallerIsRoot)
	if err != nil {
		return AuthcResult{}, err
	}

	modReq := ldap.NewPasswordModifyRequest(entry.DN, oldPassword, req.NewPassword)
	if _, err := conn.PasswordModify(modReq); err != nil {
		return AuthcResult{Status: ldappool.Classify(err), Username: req.Username, Message: "Password change rejected"}, nil
	}

	if err := updateLastChange(conn, am, entry); err != nil {
		return AuthcResult{}, nslcderr.New("pam.pwmod", nslcderr.Internal, err)
	}

	return AuthcResult{Status: nslcderr.Success, Username: req.Username, AuthzStatus: nslcderr.Success}, nil
}

// updateLastChange writes today's shadow-last-change value back to the
// directory, using the AD pwdLastSet encoding when that attribute is mapped.
func updateLastChange(conn *ldap.Conn, am *attrmap.Map, entry *ldap.Entry) error {
	attrName := am.Resolve("shadow", "shadowLastChange")
	value := fmt.Sprintf("%d", Today())

	if pwdLastSetAttr := am.Resolve("shadow", "pwdLastSet"); entry.GetAttributeValue(pwdLastSetAttr) != "" {
		attrName = pwdLastSetAttr
		value = fmt.Sprintf("%d", DaysToPwdLastSet(Today()))
	}

	req := ldap.NewModifyRequest(entry.DN, nil)
	req.Replace(attrName, []string{value})
	return conn.Modify(req)
}

// SessionID generates a 24-character PAM session identifier using
// crypto-strength randomness, per spec §5 ("the random-source used for PAM
// session ids MUST be thread-safe").
func SessionID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("pam: generate session id: %w", err)
	}
	return strings.ReplaceAll(id.String(), "-", "")[:24], nil
}

// lookupUser returns the first posixAccount entry matching uid across the
// configured passwd search bases; it does not check that the match is unique.
func lookupUser(ctx context.Context, sess *ldappool.Session, cfg *config.Config, am *attrmap.Map, username string) (*ldap.Entry, error) {
	f := filter.And(am.ObjectClass("passwd"), filter.Equals(am.Resolve("passwd", "uid"), username))

	s, err := search.Open(sess, search.Options{
		Bases:    cfg.BasesFor("passwd"),
		Filter:   f,
		Attrs:    []string{"*"},
		PageSize: 0,
	})
	if err != nil {
		return nil, err
	}
	defer s.Close()

	e, ok, err := s.Next(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return e.Entry, nil
}

// anyBaseMatches reports whether f matches any entry under the configured
// passwd search bases, each searched with its own scope; the authz/authc
// post-checks deny on any empty or failing search.
func anyBaseMatches(ctx context.Context, sess *ldappool.Session, cfg *config.Config, f string) (bool, error) {
	s, err := search.Open(sess, search.Options{
		Bases:  cfg.BasesFor("passwd"),
		Filter: f,
		Attrs:  []string{"dn"},
	})
	if err != nil {
		return false, err
	}
	defer s.Close()

	_, ok, err := s.Next(ctx)
	if err != nil {
		return false, err
	}
	return ok, nil
}

func bindAs(sess *ldappool.Session, dn, password string) error {
	conn, err := sess.Conn(false)
	if err != nil {
		return err
	}
	return conn.Bind(dn, password)
}

func varsFor(req AuthcRequest, cfg *config.Config, dn, uid string) map[string]string {
	return map[string]string{
		"username": req.Username,
		"service":  req.Service,
		"ruser":    req.RUser,
		"rhost":    req.RHost,
		"tty":      req.TTY,
		"dn":       dn,
		"uid":      uid,
	}
}

// expandTemplate substitutes ${name} references in tmpl with LDAP-escaped
// values from vars (spec §4.6: "expand against a variable dictionary ...
// with LDAP-escaped values").
func expandTemplate(tmpl string, vars map[string]string) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(tmpl) {
		if tmpl[i] == '$' && i+1 < len(tmpl) && tmpl[i+1] == '{' {
			end := strings.IndexByte(tmpl[i+2:], '}')
			if end < 0 {
				return "", fmt.Errorf("pam: unterminated ${ in template %q", tmpl)
			}
			name := tmpl[i+2 : i+2+end]
			b.WriteString(filter.Escape(vars[name]))
			i += 2 + end + 1
			continue
		}
		b.WriteByte(tmpl[i])
		i++
	}
	return b.String(), nil
}
