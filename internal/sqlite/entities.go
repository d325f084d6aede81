// This file implements the entity store: the persistence collaborator that
// gives link endpoints their stable (id, type) identity and triggers cascade
// deletes when an endpoint goes away.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/tether/pkg/types"
)

var _ types.EntityStore = (*entityStore)(nil)

type entityStore struct {
	backend *Backend
}

// Get retrieves an entity by its integer id and type.
// Returns ErrNotFound if no such entity exists.
func (es *entityStore) Get(id int64, entityType string) (*types.Entity, error) {
	if id == 0 {
		return nil, types.ErrInvalidID
	}

	es.backend.mu.RLock()
	defer es.backend.mu.RUnlock()

	if !es.backend.attached {
		return nil, types.ErrDetached
	}

	row := es.backend.db.QueryRow(
		"SELECT entity_id, uid, entity_type, name, attrs, created_at, updated_at FROM entities WHERE entity_id = ? AND entity_type = ?",
		id, entityType,
	)
	e, err := hydrateEntity(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("getting entity %s/%d: %w", entityType, id, err)
	}
	return e, nil
}

// GetByUID retrieves an entity by its public UUID.
func (es *entityStore) GetByUID(uid string) (*types.Entity, error) {
	if uid == "" {
		return nil, types.ErrInvalidID
	}

	es.backend.mu.RLock()
	defer es.backend.mu.RUnlock()

	if !es.backend.attached {
		return nil, types.ErrDetached
	}

	row := es.backend.db.QueryRow(
		"SELECT entity_id, uid, entity_type, name, attrs, created_at, updated_at FROM entities WHERE uid = ?",
		uid,
	)
	e, err := hydrateEntity(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("getting entity by uid %s: %w", uid, err)
	}
	return e, nil
}

// Save validates and persists the entity. A zero ID means create: the store
// assigns the rowid and a UUID v7. A nonzero ID updates in place. Validation
// failures leave the store untouched.
func (es *entityStore) Save(e *types.Entity) (int64, error) {
	if e == nil {
		return 0, types.ErrInvalidData
	}
	if err := e.Validate(); err != nil {
		return 0, err
	}

	es.backend.mu.Lock()
	defer es.backend.mu.Unlock()

	if !es.backend.attached {
		return 0, types.ErrDetached
	}

	now := time.Now().UTC()

	attrsJSON, err := marshalAttrs(e.Attrs)
	if err != nil {
		return 0, fmt.Errorf("encoding attrs: %w", err)
	}

	tx, err := es.backend.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if e.ID == 0 {
		newUID, err := uuid.NewV7()
		if err != nil {
			return 0, fmt.Errorf("generating UUID v7: %w", err)
		}
		e.UID = newUID.String()
		e.CreatedAt = now
		e.UpdatedAt = now

		res, err := tx.Exec(
			"INSERT INTO entities (uid, entity_type, name, attrs, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
			e.UID, e.Type, e.Name, attrsJSON, now.Format(time.RFC3339), now.Format(time.RFC3339),
		)
		if err != nil {
			return 0, fmt.Errorf("inserting entity: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("reading entity rowid: %w", err)
		}
		e.ID = id
	} else {
		e.UpdatedAt = now
		res, err := tx.Exec(
			"UPDATE entities SET name = ?, attrs = ?, updated_at = ? WHERE entity_id = ? AND entity_type = ?",
			e.Name, attrsJSON, now.Format(time.RFC3339), e.ID, e.Type,
		)
		if err != nil {
			return 0, fmt.Errorf("updating entity: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("reading update count: %w", err)
		}
		if n == 0 {
			return 0, types.ErrNotFound
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing entity: %w", err)
	}

	if err := persistEntitiesJSONL(es.backend); err != nil {
		return 0, err
	}

	return e.ID, nil
}

// Delete removes the entity and cascade-deletes every edge referencing it,
// in one transaction. Returns ErrNotFound if no such entity exists.
func (es *entityStore) Delete(id int64, entityType string) error {
	if id == 0 {
		return types.ErrInvalidID
	}

	es.backend.mu.Lock()
	defer es.backend.mu.Unlock()

	if !es.backend.attached {
		return types.ErrDetached
	}

	tx, err := es.backend.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		"DELETE FROM entities WHERE entity_id = ? AND entity_type = ?",
		id, entityType,
	)
	if err != nil {
		return fmt.Errorf("deleting entity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading delete count: %w", err)
	}
	if n == 0 {
		return types.ErrNotFound
	}

	if err := cascadeDeleteTx(tx, id, entityType); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing entity delete: %w", err)
	}

	if err := persistEntitiesJSONL(es.backend); err != nil {
		return err
	}
	return persistLinksJSONL(es.backend)
}

// Exists reports whether (id, entityType) names a stored entity.
func (es *entityStore) Exists(id int64, entityType string) (bool, error) {
	es.backend.mu.RLock()
	defer es.backend.mu.RUnlock()

	if !es.backend.attached {
		return false, types.ErrDetached
	}

	var one int
	err := es.backend.db.QueryRow(
		"SELECT 1 FROM entities WHERE entity_id = ? AND entity_type = ?",
		id, entityType,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking entity existence: %w", err)
	}
	return true, nil
}

// List returns all entities of the given type, or every entity when
// entityType is empty.
func (es *entityStore) List(entityType string) ([]*types.Entity, error) {
	es.backend.mu.RLock()
	defer es.backend.mu.RUnlock()

	if !es.backend.attached {
		return nil, types.ErrDetached
	}

	query := "SELECT entity_id, uid, entity_type, name, attrs, created_at, updated_at FROM entities"
	var args []any
	if entityType != "" {
		query += " WHERE entity_type = ?"
		args = append(args, entityType)
	}

	rows, err := es.backend.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching entities: %w", err)
	}
	defer rows.Close()

	results := []*types.Entity{}
	for rows.Next() {
		e, err := hydrateEntityFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("hydrating entity: %w", err)
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entities: %w", err)
	}
	return results, nil
}

// marshalAttrs encodes the attrs map as JSON, or NULL when empty.
func marshalAttrs(attrs map[string]any) (any, error) {
	if len(attrs) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// hydrateEntity converts a single SQLite row into a *types.Entity.
func hydrateEntity(row *sql.Row) (*types.Entity, error) {
	var e types.Entity
	var attrs sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&e.ID, &e.UID, &e.Type, &e.Name, &attrs, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	return finishEntity(&e, attrs, createdAt, updatedAt)
}

// hydrateEntityFromRows converts a row from sql.Rows into a *types.Entity.
func hydrateEntityFromRows(rows *sql.Rows) (*types.Entity, error) {
	var e types.Entity
	var attrs sql.NullString
	var createdAt, updatedAt string
	if err := rows.Scan(&e.ID, &e.UID, &e.Type, &e.Name, &attrs, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	return finishEntity(&e, attrs, createdAt, updatedAt)
}

func finishEntity(e *types.Entity, attrs sql.NullString, createdAt, updatedAt string) (*types.Entity, error) {
	if attrs.Valid && attrs.String != "" {
		if err := json.Unmarshal([]byte(attrs.String), &e.Attrs); err != nil {
			return nil, fmt.Errorf("parsing attrs: %w", err)
		}
	}
	var err error
	e.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	e.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return e, nil
}
