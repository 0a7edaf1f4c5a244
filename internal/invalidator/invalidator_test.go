package invalidator

import "testing"

func TestSelectorsForAll(t *testing.T) {
	got := selectorsFor(All)
	if len(got) != len(allSelectors) {
		t.Fatalf("expected %d selectors for All, got %d", len(allSelectors), len(got))
	}
}

func TestSelectorsForSingle(t *testing.T) {
	got := selectorsFor(Passwd)
	if len(got) != 1 || got[0] != Passwd {
		t.Fatalf("expected [Passwd], got %v", got)
	}
}

func TestSelectorsForUnknown(t *testing.T) {
	if got := selectorsFor(MapSelector(200)); got != nil {
		t.Fatalf("expected nil for unknown selector, got %v", got)
	}
}

func TestDBNamesCoverAllSelectors(t *testing.T) {
	for _, s := range allSelectors {
		if _, ok := dbNames[s]; !ok {
			t.Fatalf("selector %d missing from dbNames", s)
		}
	}
}

func TestChannelInvalidateNilSafe(t *testing.T) {
	var c *Channel
	c.Invalidate(Passwd)
	c.Close()
}
