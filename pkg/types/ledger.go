package types

import "errors"

// Ledger defines the interface for backend-agnostic storage access. Callers
// attach to a backend, reach the link and entity stores through it, and
// detach when done.
type Ledger interface {
	// Links returns the edge store.
	// Returns ErrDetached if the ledger is not attached.
	Links() (LinkStore, error)

	// Entities returns the entity store.
	// Returns ErrDetached if the ledger is not attached.
	Entities() (EntityStore, error)

	// Attach connects the Ledger to the backend described by config.
	// Creates the DataDir if it does not exist. Returns ErrAlreadyAttached
	// if called while already attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent: multiple calls succeed.
	// After Detach, store operations return ErrDetached.
	Detach() error
}

// Ledger lifecycle errors.
var (
	ErrDetached        = errors.New("ledger is detached")
	ErrAlreadyAttached = errors.New("ledger is already attached")
)
