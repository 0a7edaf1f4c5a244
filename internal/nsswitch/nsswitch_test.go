package nsswitch

import (
	"os"
	"path/filepath"
	"testing"
)

func writeNsswitch(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "nsswitch.conf")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write nsswitch.conf: %v", err)
	}
	return path
}

func TestShadowUsesLDAPTrue(t *testing.T) {
	path := writeNsswitch(t, "passwd: files\nshadow: files ldap\ngroup: files\n")
	p := New(path)
	if !p.ShadowUsesLDAP() {
		t.Fatalf("expected shadow to use ldap")
	}
}

func TestShadowUsesLDAPFalse(t *testing.T) {
	path := writeNsswitch(t, "passwd: files\nshadow: files\ngroup: files\n")
	p := New(path)
	if p.ShadowUsesLDAP() {
		t.Fatalf("expected shadow not to use ldap")
	}
}

func TestShadowUsesLDAPIgnoresComments(t *testing.T) {
	path := writeNsswitch(t, "# shadow: ldap\nshadow: files\n")
	p := New(path)
	if p.ShadowUsesLDAP() {
		t.Fatalf("commented-out line must not count")
	}
}

func TestShadowUsesLDAPMissingFile(t *testing.T) {
	p := New(filepath.Join(t.TempDir(), "missing.conf"))
	if p.ShadowUsesLDAP() {
		t.Fatalf("missing file should report false, not error")
	}
}

func TestShadowUsesLDAPCachesWithinWindow(t *testing.T) {
	path := writeNsswitch(t, "shadow: files ldap\n")
	p := New(path)
	if !p.ShadowUsesLDAP() {
		t.Fatalf("expected true on first read")
	}

	if err := os.WriteFile(path, []byte("shadow: files\n"), 0o644); err != nil {
		t.Fatalf("rewrite nsswitch.conf: %v", err)
	}
	if !p.ShadowUsesLDAP() {
		t.Fatalf("expected cached value to still be true within the recheck window")
	}
}
