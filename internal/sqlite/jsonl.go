// JSONL read/write helpers with atomic persistence. The JSONL files are the
// durable source of truth; the SQLite database is rebuilt from them on attach.
package sqlite

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mesh-intelligence/tether/pkg/types"
)

// JSONL file names in DataDir.
const (
	linksJSONLFile    = "any_links.jsonl"
	entitiesJSONLFile = "entities.jsonl"
)

// readJSONL reads a JSONL file and returns each non-empty, parseable line as
// a json.RawMessage. Malformed lines are skipped.
func readJSONL(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []json.RawMessage
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		records = append(records, json.RawMessage(cp))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, nil
}

// writeJSONL atomically writes records to a JSONL file using the temp-file,
// fsync, rename pattern.
func writeJSONL(path string, records []json.RawMessage) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("writing record: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("writing newline: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("flushing buffer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// initJSONLFiles creates empty JSONL files for any that do not yet exist, so
// a fresh DataDir round-trips through attach without special cases.
// The caller must hold b.mu.
func (b *Backend) initJSONLFiles() error {
	for _, name := range []string{linksJSONLFile, entitiesJSONLFile} {
		path := filepath.Join(b.dataDir(), name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := writeJSONL(path, nil); err != nil {
			return fmt.Errorf("initializing %s: %w", name, err)
		}
	}
	return nil
}

// persistLinksJSONL rewrites any_links.jsonl from the current table contents.
// The caller must hold b.mu.
func persistLinksJSONL(b *Backend) error {
	edges, err := allEdges(b.db)
	if err != nil {
		return fmt.Errorf("reading edges for persist: %w", err)
	}

	records := make([]json.RawMessage, 0, len(edges))
	for _, e := range edges {
		rec, err := json.Marshal(map[string]any{
			"id1":        e.ID1,
			"type1":      e.Type1,
			"id2":        e.ID2,
			"type2":      e.Type2,
			"created_at": e.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return fmt.Errorf("encoding edge: %w", err)
		}
		records = append(records, rec)
	}

	path := filepath.Join(b.dataDir(), linksJSONLFile)
	if err := writeJSONL(path, records); err != nil {
		return fmt.Errorf("persisting %s: %w", linksJSONLFile, err)
	}
	return nil
}

// persistEntitiesJSONL rewrites entities.jsonl from the current table
// contents. The caller must hold b.mu.
func persistEntitiesJSONL(b *Backend) error {
	rows, err := b.db.Query(
		"SELECT entity_id, uid, entity_type, name, attrs, created_at, updated_at FROM entities",
	)
	if err != nil {
		return fmt.Errorf("reading entities for persist: %w", err)
	}
	defer rows.Close()

	var records []json.RawMessage
	for rows.Next() {
		e, err := hydrateEntityFromRows(rows)
		if err != nil {
			return fmt.Errorf("hydrating entity for persist: %w", err)
		}
		rec, err := json.Marshal(entityRecord(e))
		if err != nil {
			return fmt.Errorf("encoding entity: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating entities for persist: %w", err)
	}

	path := filepath.Join(b.dataDir(), entitiesJSONLFile)
	if err := writeJSONL(path, records); err != nil {
		return fmt.Errorf("persisting %s: %w", entitiesJSONLFile, err)
	}
	return nil
}

// entityRecord maps an entity to the flat JSONL column layout.
func entityRecord(e *types.Entity) map[string]any {
	rec := map[string]any{
		"entity_id":   e.ID,
		"uid":         e.UID,
		"entity_type": e.Type,
		"name":        e.Name,
		"created_at":  e.CreatedAt.Format(time.RFC3339),
		"updated_at":  e.UpdatedAt.Format(time.RFC3339),
	}
	if len(e.Attrs) > 0 {
		rec["attrs"] = e.Attrs
	}
	return rec
}
