package pam

import "testing"

func TestCheckExpiryExpired(t *testing.T) {
	sh := Shadow{LastChange: -1, Min: -1, Max: -1, Warn: -1, Inactive: -1, Expire: 10000}
	d := CheckExpiry(sh, 20000)
	if d.Status == ok().Status && d.Message == "" {
		t.Fatalf("expected an expired decision")
	}
	if d.Message != "Account expired 10000 days ago" {
		t.Fatalf("unexpected message: %q", d.Message)
	}
}

func TestCheckExpiryNeedsNewPassword(t *testing.T) {
	sh := Shadow{LastChange: 0, Max: 90, Warn: -1, Inactive: -1, Expire: -1, Min: -1}
	d := CheckExpiry(sh, 100)
	if d.Message != "Need a new password" {
		t.Fatalf("expected forced change, got %q", d.Message)
	}
}

func TestCheckExpiryWithinGrace(t *testing.T) {
	sh := Shadow{LastChange: 100, Max: 90, Warn: -1, Inactive: -1, Expire: -1, Min: -1}
	d := CheckExpiry(sh, 150)
	if d.Status != ok().Status {
		t.Fatalf("expected no expiry yet, got %+v", d)
	}
}

func TestCheckExpiryWarningWindow(t *testing.T) {
	sh := Shadow{LastChange: 100, Max: 90, Warn: 10, Inactive: -1, Expire: -1, Min: -1}
	d := CheckExpiry(sh, 185)
	if d.Message == "" {
		t.Fatalf("expected warning message in the warn window")
	}
}

func TestCheckExpiryLockedAfterInactive(t *testing.T) {
	sh := Shadow{LastChange: 100, Max: 90, Warn: -1, Inactive: 5, Expire: -1, Min: -1}
	d := CheckExpiry(sh, 100+90+5)
	if d.Message != "Account locked due to password aging" {
		t.Fatalf("expected locked message, got %q", d.Message)
	}
}

func TestCheckExpiryNoMaxMeansNoExpiry(t *testing.T) {
	sh := Shadow{LastChange: 1, Max: -1, Warn: -1, Inactive: -1, Expire: -1, Min: -1}
	d := CheckExpiry(sh, 1000000)
	if d.Status != ok().Status {
		t.Fatalf("expected no expiry when max is unset, got %+v", d)
	}
}

func TestCheckMinDaysDenies(t *testing.T) {
	sh := Shadow{LastChange: 100, Min: 7}
	d := CheckMinDays(sh, 103)
	if d.Message != "Password cannot be changed for another 4 days" {
		t.Fatalf("unexpected message: %q", d.Message)
	}
}

func TestCheckMinDaysAllows(t *testing.T) {
	sh := Shadow{LastChange: 100, Min: 7}
	d := CheckMinDays(sh, 110)
	if d.Status != ok().Status {
		t.Fatalf("expected min-days check to pass, got %+v", d)
	}
}

func TestPwdLastSetRoundTrip(t *testing.T) {
	days := 20000
	raw := DaysToPwdLastSet(days)
	got, ok := PwdLastSetToDays(fmtInt(raw))
	if !ok {
		t.Fatalf("expected successful parse")
	}
	if got != days {
		t.Fatalf("round trip mismatch: got %d, want %d", got, days)
	}
}

func TestPwdLastSetInvalid(t *testing.T) {
	if _, ok := PwdLastSetToDays("not-a-number"); ok {
		t.Fatalf("expected parse failure for non-numeric input")
	}
}

func TestExpandTemplate(t *testing.T) {
	vars := map[string]string{"username": "al*ice"}
	got, err := expandTemplate("(uid=${username})", vars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `(uid=al\2aice)` {
		t.Fatalf("expected escaped substitution, got %q", got)
	}
}

func TestExpandTemplateUnterminated(t *testing.T) {
	if _, err := expandTemplate("(uid=${username)", nil); err == nil {
		t.Fatalf("expected error for unterminated placeholder")
	}
}

func TestSessionIDLength(t *testing.T) {
	id, err := SessionID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(id) != 24 {
		t.Fatalf("expected 24-character session id, got %d: %q", len(id), id)
	}
}

func fmtInt(v int64) string {
	neg := v < 0
	if v == 0 {
		return "0"
	}
	if neg {
		v = -v
	}
	var digits []byte
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}
