package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTLSConfigInsecure(t *testing.T) {
	c := &Config{TLSPeerVerify: false}

	tlsCfg, err := c.TLSConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !tlsCfg.InsecureSkipVerify {
		t.Fatalf("expected InsecureSkipVerify=true")
	}
}

func TestLoadParsesDirectives(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nslcdgo.conf")

	content := `# comment
uri ldap://dir1.example.com/
uri ldap://dir2.example.com/
base dc=example,dc=com
scope sub
binddn cn=reader,dc=example,dc=com
bindpw secret
pagesize 500
reconnect_pol soft
nss_base_passwd ou=People,dc=example,dc=com?one
nss_map_attribute passwd uid cn
nss_default_attribute_value shadow shadowMax -1
pam_authz_search (&(uid=%{username})(host=%{hostname}))
`

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.URIs) != 2 || cfg.URIs[0] != "ldap://dir1.example.com/" {
		t.Fatalf("unexpected URIs: %#v", cfg.URIs)
	}

	if cfg.BaseDN != "dc=example,dc=com" {
		t.Fatalf("unexpected base: %s", cfg.BaseDN)
	}

	if cfg.PageSize != 500 {
		t.Fatalf("unexpected pagesize: %d", cfg.PageSize)
	}

	if cfg.ReconnectPolicy != ReconnectSoft {
		t.Fatalf("unexpected reconnect policy: %v", cfg.ReconnectPolicy)
	}

	bases := cfg.BasesFor("passwd")
	if len(bases) != 1 || bases[0].Scope != ScopeOne {
		t.Fatalf("unexpected search bases: %#v", bases)
	}

	if cfg.AttributeOverrides["passwd"]["uid"] != "cn" {
		t.Fatalf("unexpected attribute override: %#v", cfg.AttributeOverrides)
	}

	if len(cfg.PamAuthzSearch) != 1 {
		t.Fatalf("unexpected authz search: %#v", cfg.PamAuthzSearch)
	}
}

func TestLoadRequiresBase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nslcdgo.conf")

	if err := os.WriteFile(path, []byte("uri ldap://dir.example.com/\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing base")
	}
}

func TestValidName(t *testing.T) {
	cfg := Defaults()

	if !cfg.ValidName("alice") {
		t.Fatalf("expected alice to be valid")
	}

	if cfg.ValidName("") {
		t.Fatalf("expected empty name to be invalid")
	}
}
