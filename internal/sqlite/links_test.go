// Tests for the link store: canonical orientation, mirroring, the
// cardinality guard, and cascade behavior.
package sqlite

import (
	"errors"
	"testing"

	"github.com/mesh-intelligence/tether/pkg/registry"
	"github.com/mesh-intelligence/tether/pkg/types"
)

// setupLinks creates an attached backend and returns its link store.
func setupLinks(t *testing.T) (*Backend, types.LinkStore) {
	t.Helper()
	b := NewBackend()
	if err := b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	t.Cleanup(func() { b.Detach() })

	links, err := b.Links()
	if err != nil {
		t.Fatalf("Links: %v", err)
	}
	return b, links
}

// resolveBinding declares d in a fresh registry and resolves its binding.
func resolveBinding(t *testing.T, d types.Declaration) types.Binding {
	t.Helper()
	r := registry.New()
	if err := r.Declare(d); err != nil {
		t.Fatalf("Declare: %v", err)
	}
	bnd, _, err := r.Resolve(d.Subject, d.Name)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return bnd
}

func roomFloors(t *testing.T) types.Binding {
	return resolveBinding(t, types.Declaration{Name: "floors", Subject: "room", Target: "floor"})
}

func personFriends(t *testing.T) types.Binding {
	return resolveBinding(t, types.Declaration{Name: "friends", Subject: "person", Target: "person"})
}

// floorRoom restricts a floor to at most one room.
func floorRoom(t *testing.T) types.Binding {
	return resolveBinding(t, types.Declaration{
		Name:         "room",
		Subject:      "floor",
		Target:       "room",
		Cardinality:  types.OneToMany,
		SubjectIsOne: true,
	})
}

func edgeCount(t *testing.T, links types.LinkStore) int {
	t.Helper()
	edges, err := links.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	return len(edges)
}

func TestLinkStore_AddIsSymmetric(t *testing.T) {
	_, links := setupLinks(t)
	bnd := roomFloors(t)

	// room 1 gains floor 2; the edge must be visible from both sides no
	// matter which side initiated it.
	err := links.Add(bnd, types.EdgeRef{SubjectID: 1, SubjectType: "room", PartnerID: 2, PartnerType: "floor"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	fromRoom, err := links.Partners(bnd, 1, "room")
	if err != nil {
		t.Fatalf("Partners(room): %v", err)
	}
	if len(fromRoom) != 1 || fromRoom[0] != 2 {
		t.Errorf("Partners(room 1) = %v, want [2]", fromRoom)
	}

	fromFloor, err := links.Partners(bnd, 2, "floor")
	if err != nil {
		t.Fatalf("Partners(floor): %v", err)
	}
	if len(fromFloor) != 1 || fromFloor[0] != 1 {
		t.Errorf("Partners(floor 2) = %v, want [1]", fromFloor)
	}

	// One physical row for distinct types.
	if n := edgeCount(t, links); n != 1 {
		t.Errorf("edge count = %d, want 1", n)
	}
}

func TestLinkStore_CanonicalOrientation(t *testing.T) {
	_, links := setupLinks(t)
	bnd := roomFloors(t)

	// Insert from the room side; "floor" sorts before "room" so the floor
	// occupies column 1 regardless.
	if err := links.Add(bnd, types.EdgeRef{SubjectID: 7, SubjectType: "room", PartnerID: 3, PartnerType: "floor"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	edges, err := links.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("edge count = %d, want 1", len(edges))
	}
	e := edges[0]
	if e.Type1 != "floor" || e.ID1 != 3 || e.Type2 != "room" || e.ID2 != 7 {
		t.Errorf("stored edge %+v not in canonical orientation", e)
	}
}

func TestLinkStore_DuplicateAdd(t *testing.T) {
	_, links := setupLinks(t)
	bnd := roomFloors(t)

	ref := types.EdgeRef{SubjectID: 1, SubjectType: "room", PartnerID: 2, PartnerType: "floor"}
	if err := links.Add(bnd, ref); err != nil {
		t.Fatalf("first Add: %v", err)
	}

	if err := links.Add(bnd, ref); !errors.Is(err, types.ErrUniqueness) {
		t.Errorf("duplicate Add: expected ErrUniqueness, got %v", err)
	}

	// Same edge from the other side is the same 4-tuple.
	if err := links.Add(bnd, ref.Swapped()); !errors.Is(err, types.ErrUniqueness) {
		t.Errorf("swapped duplicate Add: expected ErrUniqueness, got %v", err)
	}

	if n := edgeCount(t, links); n != 1 {
		t.Errorf("edge count = %d, want 1", n)
	}
}

func TestLinkStore_SelfTypeMirror(t *testing.T) {
	_, links := setupLinks(t)
	bnd := personFriends(t)

	if err := links.Add(bnd, types.EdgeRef{SubjectID: 1, SubjectType: "person", PartnerID: 2, PartnerType: "person"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Exactly two physical rows: the edge and its mirror.
	if n := edgeCount(t, links); n != 2 {
		t.Errorf("edge count = %d, want 2", n)
	}

	for _, id := range []int64{1, 2} {
		partners, err := links.Partners(bnd, id, "person")
		if err != nil {
			t.Fatalf("Partners(%d): %v", id, err)
		}
		if len(partners) != 1 {
			t.Errorf("Partners(person %d) = %v, want one partner", id, partners)
		}
	}

	// Removing from either side removes both rows.
	if err := links.Remove(bnd, types.EdgeRef{SubjectID: 2, SubjectType: "person", PartnerID: 1, PartnerType: "person"}); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if n := edgeCount(t, links); n != 0 {
		t.Errorf("edge count after remove = %d, want 0", n)
	}
}

func TestLinkStore_SelfLoopRejected(t *testing.T) {
	_, links := setupLinks(t)
	bnd := personFriends(t)

	err := links.Add(bnd, types.EdgeRef{SubjectID: 5, SubjectType: "person", PartnerID: 5, PartnerType: "person"})
	if !errors.Is(err, types.ErrSelfLink) {
		t.Fatalf("expected ErrSelfLink, got %v", err)
	}
	// Never a single dangling edge.
	if n := edgeCount(t, links); n != 0 {
		t.Errorf("edge count = %d, want 0", n)
	}
}

func TestLinkStore_CardinalityGuard(t *testing.T) {
	_, links := setupLinks(t)
	bnd := floorRoom(t)

	// Floor 1 takes room 10.
	if err := links.Add(bnd, types.EdgeRef{SubjectID: 1, SubjectType: "floor", PartnerID: 10, PartnerType: "room"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// A second room for the same floor violates the restriction, from
	// either side.
	err := links.Add(bnd, types.EdgeRef{SubjectID: 1, SubjectType: "floor", PartnerID: 11, PartnerType: "room"})
	if !errors.Is(err, types.ErrUniqueness) {
		t.Errorf("expected ErrUniqueness from floor side, got %v", err)
	}
	err = links.Add(bnd, types.EdgeRef{SubjectID: 11, SubjectType: "room", PartnerID: 1, PartnerType: "floor"})
	if !errors.Is(err, types.ErrUniqueness) {
		t.Errorf("expected ErrUniqueness from room side, got %v", err)
	}

	// The unrestricted side holds many: room 10 takes another floor.
	if err := links.Add(bnd, types.EdgeRef{SubjectID: 2, SubjectType: "floor", PartnerID: 10, PartnerType: "room"}); err != nil {
		t.Errorf("unrestricted side should accept more links: %v", err)
	}
}

func TestLinkStore_ApplyReplace(t *testing.T) {
	_, links := setupLinks(t)
	bnd := floorRoom(t)

	if err := links.Add(bnd, types.EdgeRef{SubjectID: 1, SubjectType: "floor", PartnerID: 10, PartnerType: "room"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Replace room 10 with room 11 in one call: the guard sees the remove
	// and raises nothing.
	old := types.EdgeRef{SubjectID: 1, SubjectType: "floor", PartnerID: 10, PartnerType: "room"}
	repl := types.EdgeRef{SubjectID: 1, SubjectType: "floor", PartnerID: 11, PartnerType: "room"}
	if err := links.Apply(bnd, []types.EdgeRef{old}, []types.EdgeRef{repl}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	partners, err := links.Partners(bnd, 1, "floor")
	if err != nil {
		t.Fatalf("Partners: %v", err)
	}
	if len(partners) != 1 || partners[0] != 11 {
		t.Errorf("Partners(floor 1) = %v, want [11]", partners)
	}

	// The old room's collection is empty again.
	oldSide, err := links.Partners(bnd, 10, "room")
	if err != nil {
		t.Fatalf("Partners(room 10): %v", err)
	}
	if len(oldSide) != 0 {
		t.Errorf("Partners(room 10) = %v, want empty", oldSide)
	}
}

func TestLinkStore_ApplyAtomicRollback(t *testing.T) {
	_, links := setupLinks(t)
	bnd := floorRoom(t)

	// Two rooms for one restricted floor in a single batch: the guard
	// rejects the second add and neither edge commits.
	adds := []types.EdgeRef{
		{SubjectID: 1, SubjectType: "floor", PartnerID: 10, PartnerType: "room"},
		{SubjectID: 1, SubjectType: "floor", PartnerID: 11, PartnerType: "room"},
	}
	err := links.Apply(bnd, nil, adds)
	if !errors.Is(err, types.ErrUniqueness) {
		t.Fatalf("expected ErrUniqueness, got %v", err)
	}
	if n := edgeCount(t, links); n != 0 {
		t.Errorf("edge count = %d, want 0 after rollback", n)
	}
}

func TestLinkStore_RemoveAbsentIsNoop(t *testing.T) {
	_, links := setupLinks(t)
	bnd := roomFloors(t)

	err := links.Remove(bnd, types.EdgeRef{SubjectID: 1, SubjectType: "room", PartnerID: 2, PartnerType: "floor"})
	if err != nil {
		t.Fatalf("Remove of absent edge must be a no-op, got %v", err)
	}
}

func TestLinkStore_Clear(t *testing.T) {
	_, links := setupLinks(t)
	bnd := roomFloors(t)

	for _, floorID := range []int64{2, 3, 4} {
		if err := links.Add(bnd, types.EdgeRef{SubjectID: 1, SubjectType: "room", PartnerID: floorID, PartnerType: "floor"}); err != nil {
			t.Fatalf("Add floor %d: %v", floorID, err)
		}
	}
	// An edge on another room survives the clear.
	if err := links.Add(bnd, types.EdgeRef{SubjectID: 9, SubjectType: "room", PartnerID: 2, PartnerType: "floor"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := links.Clear(bnd, 1, "room"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	partners, err := links.Partners(bnd, 1, "room")
	if err != nil {
		t.Fatalf("Partners: %v", err)
	}
	if len(partners) != 0 {
		t.Errorf("Partners after clear = %v, want empty", partners)
	}
	if n := edgeCount(t, links); n != 1 {
		t.Errorf("edge count = %d, want 1 (other room's edge)", n)
	}

	// Clearing an empty side succeeds and changes nothing.
	if err := links.Clear(bnd, 1, "room"); err != nil {
		t.Fatalf("idempotent Clear: %v", err)
	}
	if n := edgeCount(t, links); n != 1 {
		t.Errorf("edge count after second clear = %d, want 1", n)
	}
}

func TestLinkStore_ClearSelfType(t *testing.T) {
	_, links := setupLinks(t)
	bnd := personFriends(t)

	for _, friendID := range []int64{2, 3} {
		if err := links.Add(bnd, types.EdgeRef{SubjectID: 1, SubjectType: "person", PartnerID: friendID, PartnerType: "person"}); err != nil {
			t.Fatalf("Add friend %d: %v", friendID, err)
		}
	}
	if n := edgeCount(t, links); n != 4 {
		t.Fatalf("edge count = %d, want 4 (two edges, two mirrors)", n)
	}

	if err := links.Clear(bnd, 1, "person"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	// Mirrors must go with their primaries.
	if n := edgeCount(t, links); n != 0 {
		t.Errorf("edge count after clear = %d, want 0", n)
	}
}

func TestLinkStore_CascadeDelete(t *testing.T) {
	_, links := setupLinks(t)
	rooms := roomFloors(t)
	friends := personFriends(t)

	// floor 2 linked to rooms 1 and 9; person edges untouched by cascade.
	if err := links.Add(rooms, types.EdgeRef{SubjectID: 1, SubjectType: "room", PartnerID: 2, PartnerType: "floor"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := links.Add(rooms, types.EdgeRef{SubjectID: 9, SubjectType: "room", PartnerID: 2, PartnerType: "floor"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := links.Add(friends, types.EdgeRef{SubjectID: 1, SubjectType: "person", PartnerID: 2, PartnerType: "person"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := links.CascadeDelete(2, "floor"); err != nil {
		t.Fatalf("CascadeDelete: %v", err)
	}

	for _, roomID := range []int64{1, 9} {
		partners, err := links.Partners(rooms, roomID, "room")
		if err != nil {
			t.Fatalf("Partners(room %d): %v", roomID, err)
		}
		if len(partners) != 0 {
			t.Errorf("room %d still sees deleted floor: %v", roomID, partners)
		}
	}

	// The person edges (and mirror) remain.
	if n := edgeCount(t, links); n != 2 {
		t.Errorf("edge count = %d, want 2", n)
	}
}

func TestLinkStore_CascadeDeleteSelfType(t *testing.T) {
	_, links := setupLinks(t)
	bnd := personFriends(t)

	if err := links.Add(bnd, types.EdgeRef{SubjectID: 1, SubjectType: "person", PartnerID: 2, PartnerType: "person"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := links.Add(bnd, types.EdgeRef{SubjectID: 3, SubjectType: "person", PartnerID: 1, PartnerType: "person"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := links.CascadeDelete(1, "person"); err != nil {
		t.Fatalf("CascadeDelete: %v", err)
	}
	if n := edgeCount(t, links); n != 0 {
		t.Errorf("edge count = %d, want 0", n)
	}
}

func TestLinkStore_Exists(t *testing.T) {
	_, links := setupLinks(t)
	bnd := roomFloors(t)

	ref := types.EdgeRef{SubjectID: 1, SubjectType: "room", PartnerID: 2, PartnerType: "floor"}

	found, err := links.Exists(bnd, ref)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if found {
		t.Error("edge should not exist yet")
	}

	if err := links.Add(bnd, ref); err != nil {
		t.Fatalf("Add: %v", err)
	}

	for _, r := range []types.EdgeRef{ref, ref.Swapped()} {
		found, err = links.Exists(bnd, r)
		if err != nil {
			t.Fatalf("Exists: %v", err)
		}
		if !found {
			t.Errorf("edge must be visible from either orientation: %+v", r)
		}
	}
}

func TestLinkStore_MismatchedTypes(t *testing.T) {
	_, links := setupLinks(t)
	bnd := roomFloors(t)

	err := links.Add(bnd, types.EdgeRef{SubjectID: 1, SubjectType: "room", PartnerID: 2, PartnerType: "wall"})
	if !errors.Is(err, types.ErrInvalidData) {
		t.Errorf("expected ErrInvalidData for mismatched types, got %v", err)
	}

	if _, err := links.Partners(bnd, 1, "wall"); !errors.Is(err, types.ErrInvalidData) {
		t.Errorf("expected ErrInvalidData for foreign subject type, got %v", err)
	}
}

func TestLinkStore_CountAndSharedTable(t *testing.T) {
	_, links := setupLinks(t)
	rooms := roomFloors(t)
	walls := resolveBinding(t, types.Declaration{Name: "walls", Subject: "room", Target: "wall"})

	// Two associations share the one table without interference.
	if err := links.Add(rooms, types.EdgeRef{SubjectID: 1, SubjectType: "room", PartnerID: 2, PartnerType: "floor"}); err != nil {
		t.Fatalf("Add floor: %v", err)
	}
	if err := links.Add(walls, types.EdgeRef{SubjectID: 1, SubjectType: "room", PartnerID: 2, PartnerType: "wall"}); err != nil {
		t.Fatalf("Add wall: %v", err)
	}

	n, err := links.Count(rooms, 1, "room")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count(floors of room 1) = %d, want 1", n)
	}

	n, err = links.Count(walls, 1, "room")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count(walls of room 1) = %d, want 1", n)
	}
}
