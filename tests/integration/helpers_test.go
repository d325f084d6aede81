// Shared helpers for Go-API integration tests.
package integration

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/tether/pkg/assoc"
	"github.com/mesh-intelligence/tether/pkg/registry"
	"github.com/mesh-intelligence/tether/pkg/sqlite"
	"github.com/mesh-intelligence/tether/pkg/types"
)

// setupLedger attaches a backend to an isolated temp directory.
// Each test case gets its own ledger instance for isolation.
func setupLedger(t *testing.T) (types.Ledger, string) {
	t.Helper()
	dir := t.TempDir()
	ledger := sqlite.NewBackend()
	err := ledger.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir})
	require.NoError(t, err, "Attach")
	t.Cleanup(func() { ledger.Detach() })
	return ledger, dir
}

// buildRegistry declares the given associations and freezes the registry.
func buildRegistry(t *testing.T, decls ...types.Declaration) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for _, d := range decls {
		require.NoError(t, reg.Declare(d), "Declare %s.%s", d.Subject, d.Name)
	}
	reg.Freeze()
	return reg
}

// setupEngine wires a ledger and registry into an accessor engine.
func setupEngine(t *testing.T, decls ...types.Declaration) (*assoc.Engine, types.Ledger, string) {
	t.Helper()
	ledger, dir := setupLedger(t)
	reg := buildRegistry(t, decls...)
	return assoc.New(ledger, reg), ledger, dir
}

// mustSave persists an entity through the engine.
func mustSave(t *testing.T, eng *assoc.Engine, entityType, name string) *types.Entity {
	t.Helper()
	e := &types.Entity{Type: entityType, Name: name}
	require.NoError(t, eng.Save(e), "Save %s %s", entityType, name)
	return e
}
