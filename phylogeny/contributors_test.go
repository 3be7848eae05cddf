package phylogeny

import "testing"

func TestContributorsElectsHighestCount(t *testing.T) {
	c := newContributors(SID(0))
	c.update([]SID{1, 2, 1, 1})
	got, ok := c.principal()
	if !ok || got != SID(1) {
		t.Fatalf("principal() = (%v, %v), want (1, true)", got, ok)
	}
}

func TestContributorsTieBreaksByInsertionOrder(t *testing.T) {
	c := newContributors(SID(0))
	// sid 2 reaches count 1 first, then sid 1 also reaches count 1: a
	// stable sort must keep 2 ahead of 1 since it got there first.
	c.update([]SID{2})
	c.update([]SID{1})
	got, ok := c.principal()
	if !ok || got != SID(2) {
		t.Fatalf("principal() = (%v, %v), want (2, true)", got, ok)
	}
}

func TestContributorsExcludesOwnSID(t *testing.T) {
	c := newContributors(SID(5))
	c.update([]SID{5, 5, 5, 1})
	got, ok := c.principal()
	if !ok || got != SID(1) {
		t.Fatalf("principal() = (%v, %v), want (1, true) — the owner's own SID must never be its own principal", got, ok)
	}
}

func TestContributorsUpdateReportsChange(t *testing.T) {
	c := newContributors(SID(0))
	changed := c.update([]SID{1})
	if !changed {
		t.Fatal("expected the first contributor to count as a principal change")
	}
	changed = c.update([]SID{1})
	if changed {
		t.Fatal("re-electing the same principal should not report a change")
	}
	changed = c.update([]SID{2, 2, 2})
	if !changed {
		t.Fatal("expected sid 2 overtaking sid 1 to report a change")
	}
}

func TestContributorsUpdateDropsInvalid(t *testing.T) {
	c := newContributors(SID(0))
	c.update([]SID{InvalidSID, 1})
	if len(c.entries()) != 1 {
		t.Fatalf("expected INVALID to be dropped from the multiset, got %d entries", len(c.entries()))
	}
}

func TestContributorsElligibilityRecheckDrops(t *testing.T) {
	c := newContributors(SID(0))
	c.update([]SID{1, 2, 2})
	if got, _ := c.principal(); got != SID(2) {
		t.Fatalf("principal() = %v, want 2", got)
	}
	changed := c.elligibilityRecheck(func(sid SID) bool { return sid != SID(2) })
	if !changed {
		t.Fatal("expected dropping the principal contributor to report a change")
	}
	got, ok := c.principal()
	if !ok || got != SID(1) {
		t.Fatalf("principal() = (%v, %v), want (1, true)", got, ok)
	}
}
