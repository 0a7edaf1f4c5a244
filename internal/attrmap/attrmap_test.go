package attrmap

import (
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/nslcdgo/nslcdgo/internal/config"
)

func TestResolveReverseRoundTrip(t *testing.T) {
	cfg := config.Defaults()
	m := Build(cfg)

	for mapName, logicals := range defaultAttributes {
		for logical := range logicals {
			dn := m.Resolve(mapName, logical)
			if got := m.Reverse(mapName, dn); got != logical {
				t.Fatalf("round-trip failed for %s/%s: resolve=%s reverse=%s", mapName, logical, dn, got)
			}
		}
	}
}

func TestResolveOverride(t *testing.T) {
	cfg := config.Defaults()
	cfg.AttributeOverrides["passwd"] = map[string]string{"uid": "sAMAccountName"}

	m := Build(cfg)

	if got := m.Resolve("passwd", "uid"); got != "sAMAccountName" {
		t.Fatalf("expected override to apply, got %s", got)
	}

	if got := m.Reverse("passwd", "sAMAccountName"); got != "uid" {
		t.Fatalf("expected reverse override, got %s", got)
	}
}

func TestReverseUnmappedReturnsInput(t *testing.T) {
	m := Build(config.Defaults())

	if got := m.Reverse("passwd", "someUnknownAttr"); got != "someUnknownAttr" {
		t.Fatalf("expected passthrough, got %s", got)
	}
}

func TestExpressionEval(t *testing.T) {
	entry := ldap.NewEntry("uid=alice,ou=People,dc=example,dc=com", map[string][]string{
		"shadowMax": {"90"},
	})

	plain := ParseExpression("shadowMax")
	if v, ok := plain.Eval(entry); !ok || v != "90" {
		t.Fatalf("plain attribute eval failed: %v %v", v, ok)
	}

	tmpl := ParseExpression("${shadowInactive:--1}")
	if v, ok := tmpl.Eval(entry); !ok || v != "-1" {
		t.Fatalf("template default eval failed: %v %v", v, ok)
	}

	lit := ParseExpression("\"fixed\"")
	if v, ok := lit.Eval(entry); !ok || v != "fixed" {
		t.Fatalf("literal eval failed: %v %v", v, ok)
	}

	missing := ParseExpression("shadowWarning")
	if _, ok := missing.Eval(entry); ok {
		t.Fatalf("expected missing attribute with no default to return ok=false")
	}
}

func TestSIDRoundTrip(t *testing.T) {
	sid := "S-1-5-21-1936905831-823966427-12391542-23578"

	val, err := SIDToFilterValue(sid)
	if err != nil {
		t.Fatalf("SIDToFilterValue: %v", err)
	}

	if val == "" {
		t.Fatalf("expected non-empty filter value")
	}

	bin, err := sidToBinary(sid)
	if err != nil {
		t.Fatalf("sidToBinary: %v", err)
	}

	rid, err := BinarySIDToRID(bin)
	if err != nil {
		t.Fatalf("BinarySIDToRID: %v", err)
	}

	if rid != 23578 {
		t.Fatalf("expected rid 23578, got %d", rid)
	}
}
