// This file implements the link store: the shared any_links table holding
// every edge for every declared association, with canonical orientation,
// self-type mirroring, and the cardinality guard.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mesh-intelligence/tether/pkg/registry"
	"github.com/mesh-intelligence/tether/pkg/types"
)

var _ types.LinkStore = (*linkStore)(nil)

type linkStore struct {
	backend *Backend
}

// Add inserts one edge in canonical orientation inside a transaction. For
// self-type bindings with distinct ids the mirror edge commits in the same
// transaction: both rows or neither.
func (ls *linkStore) Add(b types.Binding, ref types.EdgeRef) error {
	ls.backend.mu.Lock()
	defer ls.backend.mu.Unlock()

	if !ls.backend.attached {
		return types.ErrDetached
	}

	tx, err := ls.backend.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := addEdgeTx(tx, b, ref, time.Now().UTC()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing edge insert: %w", err)
	}

	return persistLinksJSONL(ls.backend)
}

// Remove deletes the matching edge and its mirror. A missing edge is a no-op,
// not an error.
func (ls *linkStore) Remove(b types.Binding, ref types.EdgeRef) error {
	ls.backend.mu.Lock()
	defer ls.backend.mu.Unlock()

	if !ls.backend.attached {
		return types.ErrDetached
	}

	tx, err := ls.backend.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := removeEdgeTx(tx, b, ref); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing edge delete: %w", err)
	}

	return persistLinksJSONL(ls.backend)
}

// Apply runs removes then adds as a single transaction. The guard checks on
// the adds see the removes, so replacing a restricted side's link in one call
// does not trip the cardinality guard. Any failure rolls back the whole batch.
func (ls *linkStore) Apply(b types.Binding, removes, adds []types.EdgeRef) error {
	if len(removes) == 0 && len(adds) == 0 {
		return nil
	}

	ls.backend.mu.Lock()
	defer ls.backend.mu.Unlock()

	if !ls.backend.attached {
		return types.ErrDetached
	}

	tx, err := ls.backend.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, ref := range removes {
		if err := removeEdgeTx(tx, b, ref); err != nil {
			return err
		}
	}
	for _, ref := range adds {
		if err := addEdgeTx(tx, b, ref, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing edge batch: %w", err)
	}

	return persistLinksJSONL(ls.backend)
}

// Partners returns the partner ids linked to (id, subjectType) under the
// binding. The caller does not know or care which physical column the subject
// occupies.
func (ls *linkStore) Partners(b types.Binding, id int64, subjectType string) ([]int64, error) {
	ls.backend.mu.RLock()
	defer ls.backend.mu.RUnlock()

	if !ls.backend.attached {
		return nil, types.ErrDetached
	}
	return queryPartners(ls.backend.db, b, id, subjectType)
}

// Count returns the number of partners linked to (id, subjectType).
func (ls *linkStore) Count(b types.Binding, id int64, subjectType string) (int, error) {
	ls.backend.mu.RLock()
	defer ls.backend.mu.RUnlock()

	if !ls.backend.attached {
		return 0, types.ErrDetached
	}
	return countPartners(ls.backend.db, b, id, subjectType)
}

// Exists reports whether the edge named by ref is stored.
func (ls *linkStore) Exists(b types.Binding, ref types.EdgeRef) (bool, error) {
	ls.backend.mu.RLock()
	defer ls.backend.mu.RUnlock()

	if !ls.backend.attached {
		return false, types.ErrDetached
	}
	if !refMatches(b, ref) {
		return false, fmt.Errorf("%w: edge types (%s, %s) do not match binding (%s, %s)",
			types.ErrInvalidData, ref.SubjectType, ref.PartnerType, b.Left, b.Right)
	}

	id1, t1, id2, t2 := canonTuple(ref)
	return edgeExists(ls.backend.db, id1, t1, id2, t2)
}

// Clear removes every edge for (id, subjectType) under the binding. Each edge
// goes through the per-edge destroy path so mirror rows are removed with their
// primaries. Clearing an empty side succeeds and changes nothing.
func (ls *linkStore) Clear(b types.Binding, id int64, subjectType string) error {
	ls.backend.mu.Lock()
	defer ls.backend.mu.Unlock()

	if !ls.backend.attached {
		return types.ErrDetached
	}

	tx, err := ls.backend.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	partners, err := queryPartners(tx, b, id, subjectType)
	if err != nil {
		return err
	}
	for _, partnerID := range partners {
		ref := types.EdgeRef{
			SubjectID:   id,
			SubjectType: subjectType,
			PartnerID:   partnerID,
			PartnerType: b.OtherType(subjectType),
		}
		if err := removeEdgeTx(tx, b, ref); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing clear: %w", err)
	}

	return persistLinksJSONL(ls.backend)
}

// CascadeDelete removes every edge referencing (id, entityType) in either
// column position, including mirrors, across all associations.
func (ls *linkStore) CascadeDelete(id int64, entityType string) error {
	ls.backend.mu.Lock()
	defer ls.backend.mu.Unlock()

	if !ls.backend.attached {
		return types.ErrDetached
	}

	tx, err := ls.backend.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := cascadeDeleteTx(tx, id, entityType); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing cascade delete: %w", err)
	}

	return persistLinksJSONL(ls.backend)
}

// All returns every stored edge. Order unspecified.
func (ls *linkStore) All() ([]types.Edge, error) {
	ls.backend.mu.RLock()
	defer ls.backend.mu.RUnlock()

	if !ls.backend.attached {
		return nil, types.ErrDetached
	}
	return allEdges(ls.backend.db)
}

// --- transaction-scoped edge operations ---

// addEdgeTx validates the ref against the binding, runs the cardinality
// guard, and inserts the primary edge plus any mirror. Runs inside the
// caller's transaction so the guard observes earlier writes in the same
// batch (read-your-writes).
func addEdgeTx(q execer, b types.Binding, ref types.EdgeRef, now time.Time) error {
	if !refMatches(b, ref) {
		return fmt.Errorf("%w: edge types (%s, %s) do not match binding (%s, %s)",
			types.ErrInvalidData, ref.SubjectType, ref.PartnerType, b.Left, b.Right)
	}
	if b.SelfRef && ref.SubjectID == ref.PartnerID {
		return fmt.Errorf("%w: %s %d", types.ErrSelfLink, ref.SubjectType, ref.SubjectID)
	}

	// Cardinality guard: the restricted side must hold zero edges for this
	// association before the insert. A semantic precondition; the unique
	// index remains the physical backstop.
	if b.OneType != "" {
		cappedID := ref.SubjectID
		if ref.SubjectType != b.OneType {
			cappedID = ref.PartnerID
		}
		n, err := countPartners(q, b, cappedID, b.OneType)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s %d already holds a %s link",
				types.ErrUniqueness, b.OneType, cappedID, b.Name)
		}
	}

	id1, t1, id2, t2 := canonTuple(ref)

	exists, err := edgeExists(q, id1, t1, id2, t2)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: edge (%d, %s, %d, %s)", types.ErrUniqueness, id1, t1, id2, t2)
	}

	if err := insertEdge(q, id1, t1, id2, t2, now); err != nil {
		return err
	}
	if b.SelfRef {
		if err := insertEdge(q, id2, t2, id1, t1, now); err != nil {
			return err
		}
	}
	return nil
}

// removeEdgeTx deletes the canonical row for ref and, for self-type bindings,
// its mirror. Absent rows are ignored.
func removeEdgeTx(q execer, b types.Binding, ref types.EdgeRef) error {
	if !refMatches(b, ref) {
		return fmt.Errorf("%w: edge types (%s, %s) do not match binding (%s, %s)",
			types.ErrInvalidData, ref.SubjectType, ref.PartnerType, b.Left, b.Right)
	}

	id1, t1, id2, t2 := canonTuple(ref)

	if err := deleteEdge(q, id1, t1, id2, t2); err != nil {
		return err
	}
	if b.SelfRef {
		if err := deleteEdge(q, id2, t2, id1, t1); err != nil {
			return err
		}
	}
	return nil
}

// cascadeDeleteTx removes every edge touching (id, entityType) on either
// side. Edges are enumerated and destroyed one by one so same-type mirrors
// come out with their primaries.
func cascadeDeleteTx(q execer, id int64, entityType string) error {
	rows, err := q.Query(
		"SELECT id1, type1, id2, type2 FROM any_links WHERE (id1 = ? AND type1 = ?) OR (id2 = ? AND type2 = ?)",
		id, entityType, id, entityType,
	)
	if err != nil {
		return fmt.Errorf("enumerating edges for cascade: %w", err)
	}

	var tuples []types.Edge
	for rows.Next() {
		var e types.Edge
		if err := rows.Scan(&e.ID1, &e.Type1, &e.ID2, &e.Type2); err != nil {
			rows.Close()
			return fmt.Errorf("scanning edge for cascade: %w", err)
		}
		tuples = append(tuples, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterating edges for cascade: %w", err)
	}
	rows.Close()

	for _, e := range tuples {
		if err := deleteEdge(q, e.ID1, e.Type1, e.ID2, e.Type2); err != nil {
			return err
		}
		if e.Type1 == e.Type2 {
			// Mirror row; deleting an already-deleted row is a no-op.
			if err := deleteEdge(q, e.ID2, e.Type2, e.ID1, e.Type1); err != nil {
				return err
			}
		}
	}
	return nil
}

// --- row-level helpers ---

// canonTuple maps a caller-orientation ref to the canonical column order.
func canonTuple(ref types.EdgeRef) (id1 int64, t1 string, id2 int64, t2 string) {
	_, _, flipped := registry.Canonicalize(ref.SubjectType, ref.PartnerType)
	if flipped {
		return ref.PartnerID, ref.PartnerType, ref.SubjectID, ref.SubjectType
	}
	return ref.SubjectID, ref.SubjectType, ref.PartnerID, ref.PartnerType
}

// refMatches reports whether the ref's type pair is the binding's type pair.
func refMatches(b types.Binding, ref types.EdgeRef) bool {
	left, right, _ := registry.Canonicalize(ref.SubjectType, ref.PartnerType)
	return left == b.Left && right == b.Right
}

func edgeExists(q execer, id1 int64, t1 string, id2 int64, t2 string) (bool, error) {
	var one int
	err := q.QueryRow(
		"SELECT 1 FROM any_links WHERE id1 = ? AND type1 = ? AND id2 = ? AND type2 = ?",
		id1, t1, id2, t2,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking edge existence: %w", err)
	}
	return true, nil
}

func insertEdge(q execer, id1 int64, t1 string, id2 int64, t2 string, now time.Time) error {
	_, err := q.Exec(
		"INSERT INTO any_links (id1, type1, id2, type2, created_at) VALUES (?, ?, ?, ?, ?)",
		id1, t1, id2, t2, now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: edge (%d, %s, %d, %s)", types.ErrUniqueness, id1, t1, id2, t2)
		}
		return fmt.Errorf("inserting edge: %w", err)
	}
	return nil
}

func deleteEdge(q execer, id1 int64, t1 string, id2 int64, t2 string) error {
	_, err := q.Exec(
		"DELETE FROM any_links WHERE id1 = ? AND type1 = ? AND id2 = ? AND type2 = ?",
		id1, t1, id2, t2,
	)
	if err != nil {
		return fmt.Errorf("deleting edge: %w", err)
	}
	return nil
}

// queryPartners returns partner ids for (id, subjectType). For distinct-type
// bindings the subject's canonical column is known from the type order; for
// self-type bindings the mirror invariant guarantees the subject appears in
// column 1.
func queryPartners(q execer, b types.Binding, id int64, subjectType string) ([]int64, error) {
	if subjectType != b.Left && subjectType != b.Right {
		return nil, fmt.Errorf("%w: type %s not part of binding (%s, %s)",
			types.ErrInvalidData, subjectType, b.Left, b.Right)
	}
	other := b.OtherType(subjectType)

	var rows *sql.Rows
	var err error
	if b.SelfRef || subjectType == b.Left {
		rows, err = q.Query(
			"SELECT id2 FROM any_links WHERE id1 = ? AND type1 = ? AND type2 = ?",
			id, subjectType, other,
		)
	} else {
		rows, err = q.Query(
			"SELECT id1 FROM any_links WHERE id2 = ? AND type2 = ? AND type1 = ?",
			id, subjectType, other,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("querying partners: %w", err)
	}
	defer rows.Close()

	var partners []int64
	for rows.Next() {
		var pid int64
		if err := rows.Scan(&pid); err != nil {
			return nil, fmt.Errorf("scanning partner id: %w", err)
		}
		partners = append(partners, pid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating partners: %w", err)
	}
	return partners, nil
}

func countPartners(q execer, b types.Binding, id int64, subjectType string) (int, error) {
	partners, err := queryPartners(q, b, id, subjectType)
	if err != nil {
		return 0, err
	}
	return len(partners), nil
}

func allEdges(q execer) ([]types.Edge, error) {
	rows, err := q.Query("SELECT id1, type1, id2, type2, created_at FROM any_links")
	if err != nil {
		return nil, fmt.Errorf("fetching edges: %w", err)
	}
	defer rows.Close()

	var edges []types.Edge
	for rows.Next() {
		var e types.Edge
		var createdAt string
		if err := rows.Scan(&e.ID1, &e.Type1, &e.ID2, &e.Type2, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning edge: %w", err)
		}
		e.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating edges: %w", err)
	}
	return edges, nil
}

// isUniqueViolation reports whether err is the SQLite unique-index backstop
// firing. The driver exposes no typed error for this, so the message is the
// contract.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
