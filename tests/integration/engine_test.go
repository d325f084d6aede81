// Go-API integration tests: the accessor engine driving the SQLite ledger
// end-to-end, including durability across detach/attach cycles.
package integration

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/tether/pkg/assoc"
	"github.com/mesh-intelligence/tether/pkg/sqlite"
	"github.com/mesh-intelligence/tether/pkg/types"
)

func roomFloorDecls() []types.Declaration {
	return []types.Declaration{
		{Name: "floors", Subject: "room", Target: "floor"},
		{Name: "rooms", Subject: "floor", Target: "room"},
	}
}

func TestEngine_Lifecycle(t *testing.T) {
	eng, ledger, _ := setupEngine(t, roomFloorDecls()...)

	room := mustSave(t, eng, "room", "kitchen")
	f1 := mustSave(t, eng, "floor", "tiles")
	f2 := mustSave(t, eng, "floor", "boards")

	floors, err := eng.Collection(room, "floors")
	require.NoError(t, err)
	require.NoError(t, floors.Assign([]*types.Entity{f1, f2}))

	// Both reciprocal views observe the links.
	rooms, err := eng.Collection(f1, "rooms")
	require.NoError(t, err)
	partners, err := rooms.List()
	require.NoError(t, err)
	require.Len(t, partners, 1)
	assert.Equal(t, room.ID, partners[0].ID)

	// Deleting a partner cascades into the subject's collection.
	require.NoError(t, eng.Delete(f1))
	remaining, err := floors.List()
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, f2.ID, remaining[0].ID)

	links, err := ledger.Links()
	require.NoError(t, err)
	edges, err := links.All()
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestEngine_DeferredFlushOnSave(t *testing.T) {
	eng, ledger, _ := setupEngine(t, roomFloorDecls()...)

	floor := mustSave(t, eng, "floor", "tiles")

	// Buffered while the subject is unsaved.
	room := &types.Entity{Type: "room", Name: "kitchen"}
	floors, err := eng.Collection(room, "floors")
	require.NoError(t, err)
	require.NoError(t, floors.Append(floor))

	links, err := ledger.Links()
	require.NoError(t, err)
	edges, err := links.All()
	require.NoError(t, err)
	assert.Empty(t, edges, "no edges before save")

	// Save assigns identity and flushes the buffer in one step.
	require.NoError(t, eng.Save(room))
	require.True(t, room.Saved())

	edges, err = links.All()
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestEngine_SingularReplace(t *testing.T) {
	eng, _, _ := setupEngine(t,
		types.Declaration{Name: "room", Subject: "floor", Target: "room", Cardinality: types.OneToMany, SubjectIsOne: true},
		types.Declaration{Name: "floors", Subject: "room", Target: "floor", Cardinality: types.OneToMany},
	)

	floor := mustSave(t, eng, "floor", "tiles")
	r1 := mustSave(t, eng, "room", "kitchen")
	r2 := mustSave(t, eng, "room", "hall")

	sing, err := eng.Singular(floor, "room")
	require.NoError(t, err)

	require.NoError(t, sing.Set(r1))
	require.NoError(t, sing.Set(r2), "replace must not trip the cardinality guard")

	got, ok, err := sing.Get()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, r2.ID, got.ID)
}

func TestEngine_StateSurvivesReattach(t *testing.T) {
	decls := roomFloorDecls()
	eng, ledger, dir := setupEngine(t, decls...)

	room := mustSave(t, eng, "room", "kitchen")
	floor := mustSave(t, eng, "floor", "tiles")

	floors, err := eng.Collection(room, "floors")
	require.NoError(t, err)
	require.NoError(t, floors.Append(floor))

	require.NoError(t, ledger.Detach())

	// The JSONL files in the data directory are the source of truth; a
	// fresh backend rebuilds the SQLite state from them.
	require.FileExists(t, filepath.Join(dir, "any_links.jsonl"))
	require.FileExists(t, filepath.Join(dir, "entities.jsonl"))

	reborn := sqlite.NewBackend()
	require.NoError(t, reborn.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir}))
	t.Cleanup(func() { reborn.Detach() })

	eng2 := assoc.New(reborn, buildRegistry(t, decls...))

	entities, err := reborn.Entities()
	require.NoError(t, err)
	room2, err := entities.Get(room.ID, "room")
	require.NoError(t, err)
	assert.Equal(t, room.UID, room2.UID)

	floors2, err := eng2.Collection(room2, "floors")
	require.NoError(t, err)
	partners, err := floors2.List()
	require.NoError(t, err)
	require.Len(t, partners, 1)
	assert.Equal(t, floor.ID, partners[0].ID)
}

func TestEngine_SelfTypeAcrossReattach(t *testing.T) {
	decl := types.Declaration{Name: "friends", Subject: "person", Target: "person"}
	eng, ledger, dir := setupEngine(t, decl)

	alice := mustSave(t, eng, "person", "alice")
	bob := mustSave(t, eng, "person", "bob")

	friends, err := eng.Collection(alice, "friends")
	require.NoError(t, err)
	require.NoError(t, friends.Append(bob))

	require.NoError(t, ledger.Detach())

	// Both the edge and its mirror survive the round trip.
	rows := ReadJSONLFile[EdgeJSON](t, filepath.Join(dir, "any_links.jsonl"))
	require.Len(t, rows, 2)

	reborn := sqlite.NewBackend()
	require.NoError(t, reborn.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir}))
	t.Cleanup(func() { reborn.Detach() })

	eng2 := assoc.New(reborn, buildRegistry(t, decl))
	entities, err := reborn.Entities()
	require.NoError(t, err)
	bob2, err := entities.Get(bob.ID, "person")
	require.NoError(t, err)

	col, err := eng2.Collection(bob2, "friends")
	require.NoError(t, err)
	partners, err := col.List()
	require.NoError(t, err)
	require.Len(t, partners, 1)
	assert.Equal(t, alice.ID, partners[0].ID)
}
