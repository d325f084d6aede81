// Shared helpers for tether CLI commands.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/mesh-intelligence/tether/pkg/registry"
	"github.com/mesh-intelligence/tether/pkg/sqlite"
	"github.com/mesh-intelligence/tether/pkg/types"
)

// attachBackend resolves the data directory, creates a SQLite backend, and
// attaches it. The caller must defer ledger.Detach().
func attachBackend() (types.Ledger, error) {
	dataDir, err := resolveDataDir()
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}

	cfg := types.Config{
		Backend: types.BackendSQLite,
		DataDir: dataDir,
	}

	ledger := sqlite.NewBackend()
	if err := ledger.Attach(cfg); err != nil {
		return nil, fmt.Errorf("attach backend: %w", err)
	}

	return ledger, nil
}

// adHocBinding builds a many-to-many binding for a type pair named on the
// command line. The CLI has no declaration file; every link command operates
// on the shared edge table directly, so the only facts it needs are the
// canonical orientation and whether the pair is self-referential.
func adHocBinding(typeA, typeB string) types.Binding {
	left, right, _ := registry.Canonicalize(typeA, typeB)
	return types.Binding{
		Name:        "link",
		Left:        left,
		Right:       right,
		Cardinality: types.ManyToMany,
		SelfRef:     left == right,
	}
}

// parseID parses a command-line entity id.
func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", types.ErrInvalidID, arg)
	}
	return id, nil
}

// lookupEntity resolves a command-line reference to a stored entity. Numeric
// arguments are treated as integer ids scoped by type; anything else is
// treated as a public UID.
func lookupEntity(entities types.EntityStore, entityType, arg string) (*types.Entity, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return entities.Get(id, entityType)
	}
	return entities.GetByUID(arg)
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "marshal JSON:", err)
		os.Exit(exitSysError)
	}
	fmt.Println(string(out))
}

// printEntity writes one entity in the human-readable single-line form.
func printEntity(e *types.Entity) {
	fmt.Printf("%s/%d  %s  uid=%s\n", e.Type, e.ID, e.Name, e.UID)
}
