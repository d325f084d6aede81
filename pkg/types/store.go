package types

import "errors"

// LinkStore is the shared edge table. All reads and writes for every declared
// association go through this one store. Mutations are transactional: the
// primary row, any mirror row, and the cardinality guard check commit or roll
// back as one unit.
type LinkStore interface {
	// Add inserts one edge in canonical orientation. For self-type bindings
	// with distinct ids the mirror edge is written in the same transaction.
	// Returns ErrUniqueness if the edge already exists or the binding's
	// restricted side already holds a link; ErrSelfLink if both endpoints
	// are the same instance of a self-type binding.
	Add(b Binding, ref EdgeRef) error

	// Remove deletes the matching edge and its mirror, if any. Absence is
	// not an error; callers decide whether it is meaningful.
	Remove(b Binding, ref EdgeRef) error

	// Apply performs removes then adds as one transaction. Guard checks on
	// the adds observe the removes (read-your-writes), which is what makes
	// replace-in-place on a restricted side legal. Any failure rolls back
	// the entire batch.
	Apply(b Binding, removes, adds []EdgeRef) error

	// Partners returns the partner ids linked to (id, subjectType) under
	// the binding. The result is side-agnostic and its order unspecified.
	Partners(b Binding, id int64, subjectType string) ([]int64, error)

	// Count returns the number of partners linked to (id, subjectType).
	Count(b Binding, id int64, subjectType string) (int, error)

	// Exists reports whether the edge named by ref is stored.
	Exists(b Binding, ref EdgeRef) (bool, error)

	// Clear removes every edge for (id, subjectType) under the binding,
	// going through the per-edge destroy path so mirrors are removed too.
	// Clearing an empty side succeeds.
	Clear(b Binding, id int64, subjectType string) error

	// CascadeDelete removes every edge referencing (id, entityType) on
	// either physical side, across all associations, including mirrors.
	CascadeDelete(id int64, entityType string) error

	// All returns every stored edge. Order unspecified.
	All() ([]Edge, error)
}

// EntityStore is the entity persistence collaborator: it supplies stable
// (ID, Type) identity once an entity is saved and triggers cascade deletes.
type EntityStore interface {
	// Get retrieves an entity by its integer id and type.
	// Returns ErrNotFound if no such entity exists.
	Get(id int64, entityType string) (*Entity, error)

	// GetByUID retrieves an entity by its public UUID.
	GetByUID(uid string) (*Entity, error)

	// Save validates and persists the entity. On first save it assigns the
	// integer id and a UUID v7. Returns the id used. On validation failure
	// nothing is written and ErrValidation is returned.
	Save(e *Entity) (int64, error)

	// Delete removes the entity and cascade-deletes every edge referencing
	// it, as one transaction. Returns ErrNotFound if no such entity exists.
	Delete(id int64, entityType string) error

	// Exists reports whether (id, entityType) names a stored entity.
	Exists(id int64, entityType string) (bool, error)

	// List returns all entities of the given type, or all entities when
	// entityType is empty.
	List(entityType string) ([]*Entity, error)
}

// Store operation errors.
var (
	ErrUniqueness  = errors.New("uniqueness violation")
	ErrNotFound    = errors.New("entity not found")
	ErrInvalidID   = errors.New("invalid entity ID")
	ErrInvalidData = errors.New("invalid entity data")
	ErrSelfLink    = errors.New("entity cannot link to itself")
	ErrValidation  = errors.New("entity validation failed")
)

// Registry errors.
var (
	ErrRegistryFrozen       = errors.New("registry is frozen")
	ErrDuplicateAssociation = errors.New("association already declared")
	ErrUnknownAssociation   = errors.New("association not declared")
	ErrSelfOneToMany        = errors.New("self-referential association cannot be one-to-many")
)
