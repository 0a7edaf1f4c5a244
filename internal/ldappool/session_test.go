package ldappool

import (
	"testing"
	"time"

	"github.com/nslcdgo/nslcdgo/internal/config"
	"github.com/nslcdgo/nslcdgo/internal/logging"
)

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.BaseDN = "dc=example,dc=com"
	cfg.ReconnectTries = 1
	cfg.ReconnectMaxConnTries = 1
	cfg.ReconnectSleepTime = time.Millisecond
	cfg.ReconnectMaxSleepTime = time.Millisecond
	return cfg
}

// TestFailoverExhaustsURIs exercises spec §8's fail-over scenario: all
// configured URIs are unreachable (nothing listens on these ports), so the
// connect loop must exhaust its attempts and return an error rather than
// hang, leaving the cursor pointing inside the URI list.
func TestFailoverExhaustsURIs(t *testing.T) {
	cfg := testConfig()
	cfg.URIs = []string{"ldap://127.0.0.1:1/", "ldap://127.0.0.1:2/"}
	cfg.ReconnectPolicy = config.ReconnectSoft

	s := New(cfg, logging.New(logging.Options{}))

	_, err := s.Conn(false)
	if err == nil {
		t.Fatalf("expected connection error against unreachable URIs")
	}

	if s.uriCursor < 0 || s.uriCursor >= len(cfg.URIs) {
		t.Fatalf("cursor out of range: %d", s.uriCursor)
	}
}

func TestIdleExpiredLocked(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = 10 * time.Millisecond

	s := New(cfg, logging.New(logging.Options{}))
	s.lastActivity = time.Now().Add(-20 * time.Millisecond)

	if !s.idleExpiredLocked() {
		t.Fatalf("expected idle timeout to have elapsed")
	}

	s.lastActivity = time.Now()
	if s.idleExpiredLocked() {
		t.Fatalf("expected idle timeout not to have elapsed")
	}
}

func TestMarkSearchOpenClosed(t *testing.T) {
	cfg := testConfig()
	s := New(cfg, logging.New(logging.Options{}))

	if !s.MarkSearchOpen() {
		t.Fatalf("expected first MarkSearchOpen to succeed")
	}

	if s.MarkSearchOpen() {
		t.Fatalf("expected second MarkSearchOpen to fail while one is active")
	}

	s.MarkSearchClosed()

	if !s.MarkSearchOpen() {
		t.Fatalf("expected MarkSearchOpen to succeed again after close")
	}
}

func TestIdentityForRoot(t *testing.T) {
	cfg := testConfig()
	cfg.RootBindDN = "cn=admin,dc=example,dc=com"
	cfg.RootBindPassword = "secret"
	cfg.BindMode = config.BindSimple
	cfg.BindDN = "cn=reader,dc=example,dc=com"

	s := New(cfg, logging.New(logging.Options{}))

	root := s.identityFor(true)
	if root.DN != cfg.RootBindDN {
		t.Fatalf("expected root identity, got %+v", root)
	}

	nonRoot := s.identityFor(false)
	if nonRoot.DN != cfg.BindDN {
		t.Fatalf("expected reader identity, got %+v", nonRoot)
	}
}
