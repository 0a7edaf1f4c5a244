// Package ldappool implements the per-worker LDAP session described in spec
// §4.3: lazy init, URI fail-over with a sticky cursor, rebind to a referred URL,
// TLS/SASL bind, idle-timeout close and reconnect backoff. One Session is
// owned by exactly one worker goroutine; there is no shared LDAP handle.
package ldappool

import (
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/nslcdgo/nslcdgo/internal/config"
	"github.com/nslcdgo/nslcdgo/internal/logging"
	"github.com/nslcdgo/nslcdgo/internal/nslcderr"
)

// State mirrors the LdapSession lifecycle in spec §3.
type State int

const (
	Uninitialized State = iota
	Initialized
	Connected
)

// Identity is the bound identity used for a session, generalizing the
// teacher's "root-bind-dn vs anonymous vs simple" dispatch in connectLookup.
type Identity struct {
	DN       string
	Password string
	SASL     bool
}

// Session is the per-worker LDAP connection, grounded on the teacher's
// client struct (internal/ldapclient/ldapclient.go), generalized from "one
// shared lookup connection + a pool of user connections" to "one owned
// session with URI fail-over and rebind", since nslcdgo has no concept of a
// pool shared across workers (spec §4.3, §5).
type Session struct {
	cfg *config.Config
	log *logging.Logger

	mu           sync.Mutex
	conn         *ldap.Conn
	state        State
	uriCursor    int
	identity     Identity
	lastActivity time.Time
	searchOpen   bool
}

// New creates a Session bound to cfg. The underlying connection is not
// opened until first use (spec §4.3: "A session is created lazily per
// worker").
func New(cfg *config.Config, log *logging.Logger) *Session {
	return &Session{cfg: cfg, log: log, state: Uninitialized}
}

// Close tears the session down unconditionally. Safe to call on an
// uninitialized or already-closed session.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Session) closeLocked() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.state = Uninitialized
	s.searchOpen = false
}

// Conn returns the live LDAP connection, establishing and binding it first
// if necessary: applying the idle-timeout check, the URI fail-over loop, and
// (for root callers) the root-bind identity. asRoot selects the identity per
// spec §4.3 ("If caller euid is 0 and a root-bind DN is configured, bind as
// that DN...").
func (s *Session) Conn(asRoot bool) (*ldap.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Connected && !s.idleExpiredLocked() {
		s.lastActivity = time.Now()
		return s.conn, nil
	}

	if s.state == Connected && s.idleExpiredLocked() {
		s.log.Base().Debug().Msg("ldappool: idle timeout exceeded, closing session before reuse")
		s.closeLocked()
	}

	if err := s.connectAndBindLocked(asRoot); err != nil {
		return nil, err
	}

	s.lastActivity = time.Now()
	return s.conn, nil
}

func (s *Session) idleExpiredLocked() bool {
	if s.cfg.IdleTimeout <= 0 {
		return false
	}
	return time.Since(s.lastActivity) > s.cfg.IdleTimeout
}

// identityFor resolves which credentials to bind with, per spec §4.3.
func (s *Session) identityFor(asRoot bool) Identity {
	if asRoot && s.cfg.RootBindDN != "" {
		return Identity{DN: s.cfg.RootBindDN, Password: s.cfg.RootBindPassword}
	}

	switch s.cfg.BindMode {
	case config.BindSimple:
		return Identity{DN: s.cfg.BindDN, Password: s.cfg.BindPassword}
	case config.BindSASL:
		return Identity{DN: s.cfg.SASLAuthcid, SASL: true}
	default:
		return Identity{}
	}
}

// connectAndBindLocked runs the fail-over loop described in spec §4.3: tries
// each URI in turn, with a bounded retry count and an exponential sleep
// after the first reconnect_maxconntries attempts, honoring the soft policy
// early-exit.
func (s *Session) connectAndBindLocked(asRoot bool) error {
	identity := s.identityFor(asRoot)

	maxAttempts := s.cfg.ReconnectTries + s.cfg.ReconnectMaxConnTries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	sleep := s.cfg.ReconnectSleepTime
	uris := s.cfg.URIs
	if len(uris) == 0 {
		return nslcderr.New("ldappool.connect", nslcderr.Internal, fmt.Errorf("no LDAP URIs configured"))
	}

	var lastErr error
	sweepsWithoutSuccess := 0

	for attempt := 0; attempt < maxAttempts; attempt++ {
		uri := uris[s.uriCursor%len(uris)]

		err := s.dialAndBindOne(uri, identity)
		if err == nil {
			s.state = Connected
			s.identity = identity
			if attempt > 0 {
				s.log.Base().Info().Str("uri", uri).Msg("ldappool: reconnected")
			} else {
				s.log.Base().Debug().Str("uri", uri).Msg("ldappool: connected")
			}
			return nil
		}

		lastErr = err
		s.log.Base().Warn().Str("uri", uri).Err(err).Msg("ldappool: connection attempt failed")

		s.uriCursor = (s.uriCursor + 1) % len(uris)
		if s.uriCursor == 0 {
			sweepsWithoutSuccess++
		}

		if s.cfg.ReconnectPolicy == config.ReconnectSoft && sweepsWithoutSuccess >= 1 {
			break
		}

		if attempt >= s.cfg.ReconnectMaxConnTries {
			time.Sleep(sleep)
			sleep *= 2
			if sleep > s.cfg.ReconnectMaxSleepTime {
				sleep = s.cfg.ReconnectMaxSleepTime
			}
		}
	}

	return nslcderr.New("ldappool.connect", nslcderr.Unavailable, lastErr)
}

// dialAndBindOne dials one URI, brings up TLS if requested, and binds,
// mirroring the teacher's connectLookup/dialUser scheme dispatch.
func (s *Session) dialAndBindOne(uri string, identity Identity) error {
	tlsCfg, err := s.cfg.TLSConfig()
	if err != nil {
		return err
	}

	var conn *ldap.Conn

	switch {
	case strings.HasPrefix(uri, "ldaps://"):
		conn, err = ldap.DialURL(uri, ldap.DialWithTLSConfig(tlsCfg))
	default:
		conn, err = ldap.DialURL(uri)
		if err == nil && s.cfg.TLSMode == config.TLSStartTLS {
			if tlsErr := conn.StartTLS(tlsCfg); tlsErr != nil {
				conn.Close()
				return fmt.Errorf("starttls on %s: %w", uri, tlsErr)
			}
		}
	}

	if err != nil {
		return fmt.Errorf("dial %s: %w", uri, err)
	}

	conn.SetTimeout(s.cfg.OpTimeout)

	if err := s.bind(conn, identity); err != nil {
		conn.Close()
		return err
	}

	conn.SetTimeout(s.cfg.OpTimeout)
	s.conn = conn

	return nil
}

func (s *Session) bind(conn *ldap.Conn, identity Identity) error {
	switch {
	case identity.SASL:
		return conn.ExternalBind()
	case identity.DN == "":
		return conn.UnauthenticatedBind("")
	default:
		return conn.Bind(identity.DN, identity.Password)
	}
}

// Rebind follows a referral returned by the server, replaying the session's
// current credentials against the referred-to URL and redoing STARTTLS if
// active, per spec §4.3 Rebind and §9 Design Notes ("carry the session as
// context so the callback has no hidden globals"). Nothing in this module
// calls it; internal/search does not act on referral-class results. On
// success the session adopts the new connection, on failure the error
// propagates as Unavailable.
func (s *Session) Rebind(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tlsCfg, err := s.cfg.TLSConfig()
	if err != nil {
		return nslcderr.New("ldappool.rebind", nslcderr.Unavailable, err)
	}

	conn, err := rebindTo(url, s.identity, tlsCfg, s.cfg.TLSMode == config.TLSStartTLS)
	if err != nil {
		return err
	}

	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = conn
	s.state = Connected

	return nil
}

func rebindTo(url string, identity Identity, tlsCfg *tls.Config, startTLS bool) (*ldap.Conn, error) {
	conn, err := ldap.DialURL(url)
	if err != nil {
		return nil, nslcderr.New("ldappool.rebind", nslcderr.Unavailable, err)
	}

	if startTLS {
		if err := conn.StartTLS(tlsCfg); err != nil {
			conn.Close()
			return nil, nslcderr.New("ldappool.rebind", nslcderr.Unavailable, err)
		}
	}

	if err := bindIdentity(conn, identity); err != nil {
		conn.Close()
		return nil, nslcderr.New("ldappool.rebind", nslcderr.Unavailable, err)
	}

	return conn, nil
}

func bindIdentity(conn *ldap.Conn, identity Identity) error {
	switch {
	case identity.SASL:
		return conn.ExternalBind()
	case identity.DN == "":
		return conn.UnauthenticatedBind("")
	default:
		return conn.Bind(identity.DN, identity.Password)
	}
}

// MarkSearchOpen/MarkSearchClosed enforce the "at most one active Search per
// session" invariant from spec §3.
func (s *Session) MarkSearchOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.searchOpen {
		return false
	}
	s.searchOpen = true
	return true
}

func (s *Session) MarkSearchClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchOpen = false

	if s.cfg.ConnectPolicy == config.ConnectOneshot {
		s.closeLocked()
	}
}

// Touch refreshes the last-activity timestamp; called after every operation.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// classify maps a raw error from go-ldap/the network stack onto the status
// kinds in spec §4.4 "Error -> status mapping".
func classify(err error) nslcderr.Status {
	if err == nil {
		return nslcderr.Success
	}

	var ldapErr *ldap.Error
	if asLDAPError(err, &ldapErr) {
		switch ldapErr.ResultCode {
		case ldap.LDAPResultSuccess, ldap.LDAPResultSizeLimitExceeded, ldap.LDAPResultTimeLimitExceeded:
			return nslcderr.Success
		case ldap.LDAPResultNoSuchObject, ldap.LDAPResultUndefinedAttributeType,
			ldap.LDAPResultInvalidAttributeSyntax, ldap.LDAPResultInappropriateMatching:
			return nslcderr.NotFound
		case ldap.LDAPResultBusy, ldap.LDAPResultUnavailable, ldap.LDAPResultInvalidCredentials:
			return nslcderr.Unavailable
		default:
			return nslcderr.Unavailable
		}
	}

	return nslcderr.Unavailable
}

func asLDAPError(err error, target **ldap.Error) bool {
	for err != nil {
		if e, ok := err.(*ldap.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Classify is the exported form of classify, used by internal/search and
// internal/handlers to normalize LDAP errors at the package boundary (spec
// §7: "LDAP operation errors are mapped once at the LdapPool/Search boundary").
func Classify(err error) nslcderr.Status { return classify(err) }
