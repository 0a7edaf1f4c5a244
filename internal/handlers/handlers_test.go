package handlers

import "testing"

func TestStripCryptPrefix(t *testing.T) {
	cases := map[string]string{
		"{CRYPT}$6$abc": "$6$abc",
		"CRYPT$abc":     "abc",
		"plainvalue":    "plainvalue",
	}
	for in, want := range cases {
		if got := stripCryptPrefix(in); got != want {
			t.Fatalf("stripCryptPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEqualFold(t *testing.T) {
	if !equalFold("ShadowAccount", "shadowaccount") {
		t.Fatalf("expected case-insensitive match")
	}
	if equalFold("a", "ab") {
		t.Fatalf("expected length mismatch to fail")
	}
}

func TestAtoi32AndItoa(t *testing.T) {
	if atoi32("1001") != 1001 {
		t.Fatalf("expected 1001")
	}
	if atoi32("not-a-number") != 0 {
		t.Fatalf("expected 0 on parse failure")
	}
	if itoa(42) != "42" {
		t.Fatalf("expected \"42\"")
	}
}

func TestDedupe(t *testing.T) {
	got := dedupe([]string{"alice", "bob", "alice", "carol", "bob"})
	if len(got) != 3 {
		t.Fatalf("expected 3 unique entries, got %d: %v", len(got), got)
	}
}

func TestNameListCycleDetection(t *testing.T) {
	n := newNameList()
	if n.seen("cn=ops,dc=example,dc=com") {
		t.Fatalf("expected not seen before visiting")
	}
	n.visit("CN=Ops,dc=example,dc=com")
	if !n.seen("cn=ops,dc=example,dc=com") {
		t.Fatalf("expected case-insensitive match after visiting")
	}
}

func TestCanonicalEther(t *testing.T) {
	cases := map[string]string{
		"00:11:22:33:44:55": "00:11:22:33:44:55",
		"00-11-22-33-44-55": "00:11:22:33:44:55",
		"0011.2233.4455":     "00:11:22:33:44:55",
		"001122334455":       "00:11:22:33:44:55",
	}
	for in, want := range cases {
		got, ok := canonicalEther(in)
		if !ok {
			t.Fatalf("expected %q to parse", in)
		}
		if got != want {
			t.Fatalf("canonicalEther(%q) = %q, want %q", in, got, want)
		}
	}

	if _, ok := canonicalEther("not-an-address"); ok {
		t.Fatalf("expected invalid address to fail")
	}
}

func TestNetworkAddrCandidates(t *testing.T) {
	got := networkAddrCandidates("10.0.0.0")
	want := []string{"10.0.0.0", "10.0.0", "10.0"}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("candidate %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNetworkAddrCandidatesNoTrailingZero(t *testing.T) {
	got := networkAddrCandidates("10.1.2.3")
	if len(got) != 1 || got[0] != "10.1.2.3" {
		t.Fatalf("expected single candidate, got %v", got)
	}
}

func TestParseTriple(t *testing.T) {
	tr, ok := parseTriple("(host1,user1,domain1)")
	if !ok {
		t.Fatalf("expected successful parse")
	}
	if tr.Host != "host1" || tr.User != "user1" || tr.Domain != "domain1" {
		t.Fatalf("unexpected triple: %+v", tr)
	}
}

func TestParseTripleEmptyComponents(t *testing.T) {
	tr, ok := parseTriple("(,user1,)")
	if !ok {
		t.Fatalf("expected successful parse")
	}
	if tr.Host != "" || tr.User != "user1" || tr.Domain != "" {
		t.Fatalf("unexpected triple: %+v", tr)
	}
}

func TestParseTripleMalformed(t *testing.T) {
	if _, ok := parseTriple("not-a-triple"); ok {
		t.Fatalf("expected malformed triple to fail")
	}
}
