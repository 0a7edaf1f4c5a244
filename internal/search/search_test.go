package search

import (
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/nslcdgo/nslcdgo/internal/config"
)

func TestLdapScopeMapping(t *testing.T) {
	cases := map[config.Scope]int{
		config.ScopeBase: ldap.ScopeBaseObject,
		config.ScopeOne:  ldap.ScopeSingleLevel,
		config.ScopeSub:  ldap.ScopeWholeSubtree,
	}

	for in, want := range cases {
		if got := ldapScope(in); got != want {
			t.Fatalf("ldapScope(%v) = %d, want %d", in, got, want)
		}
	}
}

func TestPagingCookieExtractsControl(t *testing.T) {
	pc := ldap.NewControlPaging(100)
	pc.SetCookie([]byte("opaque-cookie"))

	result := &ldap.SearchResult{Controls: []ldap.Control{pc}}

	got := pagingCookie(result)
	if string(got) != "opaque-cookie" {
		t.Fatalf("expected cookie to round-trip, got %q", got)
	}
}

func TestPagingCookieNoControl(t *testing.T) {
	result := &ldap.SearchResult{}
	if got := pagingCookie(result); got != nil {
		t.Fatalf("expected nil cookie, got %v", got)
	}
}

func TestControlsForDisabledWhenPageSizeZero(t *testing.T) {
	s := &Search{pageSize: 0}
	if ctrls := s.controlsFor(); ctrls != nil {
		t.Fatalf("expected no controls when paging disabled, got %v", ctrls)
	}
}

func TestControlsForIncludesCookie(t *testing.T) {
	s := &Search{pageSize: 50, cookie: []byte("abc")}
	ctrls := s.controlsFor()
	if len(ctrls) != 1 {
		t.Fatalf("expected one control, got %d", len(ctrls))
	}
	pc, ok := ctrls[0].(*ldap.ControlPaging)
	if !ok {
		t.Fatalf("expected *ldap.ControlPaging, got %T", ctrls[0])
	}
	if string(pc.Cookie) != "abc" {
		t.Fatalf("expected cookie abc, got %q", pc.Cookie)
	}
}
