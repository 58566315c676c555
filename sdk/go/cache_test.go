package dutysdk

import (
	"reflect"
	"testing"
)

func seedCollection() *Collection {
	return NewCollection([]Duty{
		{ID: "d1", ClientID: "acme-co", Title: "Patch servers", Status: StatusPending, Lifecycle: LifecycleActive},
		{ID: "d2", ClientID: "acme-co", Title: "Rotate tokens", Status: StatusInProgress, Lifecycle: LifecycleActive},
	})
}

func TestMutationRollbackRestoresSnapshot(t *testing.T) {
	c := seedCollection()
	before := c.Duties()

	m := c.Begin()
	m.ApplyUpdate("d1", func(d Duty) Duty {
		d.Status = StatusCompleted
		d.Lifecycle = LifecycleArchived
		return d
	})
	if m.State() != StateTentative {
		t.Fatalf("state %v", m.State())
	}
	tentative := c.Duties()
	if tentative[0].Status != StatusCompleted {
		t.Fatalf("tentative not applied: %+v", tentative[0])
	}

	m.Fail()
	if m.State() != StateRolledBack {
		t.Fatalf("state after fail %v", m.State())
	}
	after := c.Duties()
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("rollback not exact:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestMutationSucceedMergesAuthoritativeRow(t *testing.T) {
	c := seedCollection()

	m := c.Begin()
	m.ApplyUpdate("d1", func(d Duty) Duty {
		d.Status = StatusCompleted
		return d
	})
	authoritative := Duty{ID: "d1", ClientID: "acme-co", Title: "Patch servers", Status: StatusCompleted, Lifecycle: LifecycleArchived, UpdatedAt: "2024-01-01T00:00:00.000Z"}
	m.Succeed(authoritative)
	if m.State() != StateReconciled {
		t.Fatalf("state %v", m.State())
	}
	duties := c.Duties()
	if len(duties) != 2 || !reflect.DeepEqual(duties[0], authoritative) {
		t.Fatalf("merge result %+v", duties)
	}
}

func TestMutationCreateReplacesTempID(t *testing.T) {
	c := seedCollection()

	m := c.Begin()
	m.ApplyCreate("temp-123", Duty{ClientID: "acme-co", Title: "New duty", Status: StatusPending, Lifecycle: LifecycleActive})
	duties := c.Duties()
	if len(duties) != 3 || duties[0].ID != "temp-123" {
		t.Fatalf("placeholder %+v", duties)
	}

	authoritative := Duty{ID: "duty-real", ClientID: "acme-co", Title: "New duty", Status: StatusPending, Lifecycle: LifecycleActive}
	m.Succeed(authoritative)
	duties = c.Duties()
	if len(duties) != 3 {
		t.Fatalf("create merge grew list: %d", len(duties))
	}
	for _, d := range duties {
		if d.ID == "temp-123" {
			t.Fatalf("temp id survived merge: %+v", duties)
		}
	}
	if duties[0].ID != "duty-real" {
		t.Fatalf("authoritative row not in place: %+v", duties[0])
	}
}

func TestMutationCreateRollbackRemovesPlaceholder(t *testing.T) {
	c := seedCollection()
	before := c.Duties()

	m := c.Begin()
	m.ApplyCreate("temp-123", Duty{ClientID: "acme-co", Title: "New duty", Status: StatusPending})
	m.Fail()
	if !reflect.DeepEqual(before, c.Duties()) {
		t.Fatalf("placeholder survived rollback: %+v", c.Duties())
	}
}

func TestStaleRefreshDiscarded(t *testing.T) {
	c := seedCollection()

	// A refresh started before the mutation must not clobber it.
	gen := c.Generation()
	m := c.Begin()
	m.ApplyUpdate("d1", func(d Duty) Duty {
		d.Status = StatusCompleted
		return d
	})
	if c.Refresh(gen, []Duty{{ID: "d1", Status: StatusPending}}) {
		t.Fatalf("stale refresh applied")
	}
	if c.Duties()[0].Status != StatusCompleted {
		t.Fatalf("optimistic state clobbered: %+v", c.Duties()[0])
	}

	// A refresh started after the mutation applies cleanly.
	gen = c.Generation()
	fresh := []Duty{{ID: "d1", Status: StatusCompleted, Lifecycle: LifecycleArchived}}
	if !c.Refresh(gen, fresh) {
		t.Fatalf("current refresh discarded")
	}
	if len(c.Duties()) != 1 {
		t.Fatalf("refresh not installed: %+v", c.Duties())
	}
}
