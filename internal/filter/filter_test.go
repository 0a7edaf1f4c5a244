package filter

import "testing"

func TestEscapeRoundTripInFilterComposition(t *testing.T) {
	tricky := "al*ice(evil)\\x"

	escaped := Escape(tricky)

	built := Equals("cn", tricky)
	want := "(cn=" + escaped + ")"
	if built != want {
		t.Fatalf("Equals did not escape as expected: got %q want %q", built, want)
	}
}

func TestBuildSubstitutesEscaped(t *testing.T) {
	got, err := Build("(&(objectClass=posixAccount)(uid=%s))", "al*ice")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := "(&(objectClass=posixAccount)(uid=al\\2aice))"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestBuildArgCountMismatch(t *testing.T) {
	if _, err := Build("(uid=%s)"); err == nil {
		t.Fatalf("expected error for missing argument")
	}
}

func TestAndComposesObjectClassAndTerms(t *testing.T) {
	got := And("posixAccount", Equals("uid", "alice"))
	want := "(&(objectClass=posixAccount)(uid=alice))"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestOrEqualsSingleAndMultiple(t *testing.T) {
	if got := OrEquals("memberUid", "alice"); got != "(memberUid=alice)" {
		t.Fatalf("single-value OrEquals: %q", got)
	}

	got := OrEquals("memberUid", "alice", "bob")
	want := "(|(memberUid=alice)(memberUid=bob))"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestOrEqualsEmpty(t *testing.T) {
	if got := OrEquals("memberUid"); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}
