// Package assoc implements the collection accessor protocol on top of the
// link store: per-association collection and singular accessors, transactional
// assignment, and deferred buffering of mutations on not-yet-persisted
// subjects.
package assoc

import (
	"fmt"
	"sync"

	"github.com/mesh-intelligence/tether/pkg/registry"
	"github.com/mesh-intelligence/tether/pkg/types"
)

// Engine ties a ledger and a registry together and hands out accessors.
// It also owns the deferred-mutation buffer: association mutations on an
// unsaved subject are held in memory until Save persists the subject, then
// flushed as one batch.
type Engine struct {
	ledger types.Ledger
	reg    *registry.Registry

	mu      sync.Mutex
	pending map[*types.Entity]map[string]*pendingSet
}

// New creates an engine over an attached ledger and a populated registry.
func New(ledger types.Ledger, reg *registry.Registry) *Engine {
	return &Engine{
		ledger:  ledger,
		reg:     reg,
		pending: make(map[*types.Entity]map[string]*pendingSet),
	}
}

// Collection returns the collection accessor for a declared association as
// seen from the subject. Returns ErrUnknownAssociation if the subject's type
// has no such declaration.
func (e *Engine) Collection(subject *types.Entity, name string) (*Collection, error) {
	if subject == nil {
		return nil, types.ErrInvalidData
	}
	binding, decl, err := e.reg.Resolve(subject.Type, name)
	if err != nil {
		return nil, err
	}
	return &Collection{eng: e, subject: subject, binding: binding, decl: decl}, nil
}

// Singular returns the singular accessor for the restricted side of a
// one-to-many association. The subject's type must be the capped side.
func (e *Engine) Singular(subject *types.Entity, name string) (*Singular, error) {
	col, err := e.Collection(subject, name)
	if err != nil {
		return nil, err
	}
	if !col.binding.Restricted(subject.Type) {
		return nil, fmt.Errorf("%w: %s.%s is not the restricted side of a one-to-many association",
			types.ErrInvalidData, subject.Type, name)
	}
	return &Singular{col: col}, nil
}

// Save persists the subject entity and flushes any buffered association
// mutations for it. If the entity fails validation nothing is written and
// the buffer is retained, so a retry after fixing the entity still carries
// the pending assignment. The buffer is cleared only after a fully
// successful flush.
func (e *Engine) Save(subject *types.Entity) error {
	if subject == nil {
		return types.ErrInvalidData
	}
	entities, err := e.ledger.Entities()
	if err != nil {
		return err
	}

	if _, err := entities.Save(subject); err != nil {
		return err
	}

	return e.flush(subject)
}

// Delete removes the subject entity, cascade-deleting its edges, and drops
// any buffered mutations for it.
func (e *Engine) Delete(subject *types.Entity) error {
	if subject == nil {
		return types.ErrInvalidData
	}

	e.mu.Lock()
	delete(e.pending, subject)
	e.mu.Unlock()

	if !subject.Saved() {
		return nil
	}
	entities, err := e.ledger.Entities()
	if err != nil {
		return err
	}
	return entities.Delete(subject.ID, subject.Type)
}

// flush writes the buffered desired-state of a freshly saved subject. Unsaved
// partner entities are persisted first; any failure leaves the buffer in
// place for retry.
func (e *Engine) flush(subject *types.Entity) error {
	e.mu.Lock()
	byName := e.pending[subject]
	e.mu.Unlock()

	if len(byName) == 0 {
		return nil
	}

	links, err := e.ledger.Links()
	if err != nil {
		return err
	}
	entities, err := e.ledger.Entities()
	if err != nil {
		return err
	}

	for name, set := range byName {
		binding, _, err := e.reg.Resolve(subject.Type, name)
		if err != nil {
			return err
		}

		var adds []types.EdgeRef
		for _, p := range set.partners {
			id := p.id
			if p.entity != nil && !p.entity.Saved() {
				if _, err := entities.Save(p.entity); err != nil {
					return fmt.Errorf("saving pending partner for %s.%s: %w", subject.Type, name, err)
				}
			}
			if p.entity != nil {
				id = p.entity.ID
			}
			adds = append(adds, types.EdgeRef{
				SubjectID:   subject.ID,
				SubjectType: subject.Type,
				PartnerID:   id,
				PartnerType: binding.OtherType(subject.Type),
			})
		}

		if err := links.Apply(binding, nil, adds); err != nil {
			return err
		}

		e.mu.Lock()
		delete(e.pending[subject], name)
		e.mu.Unlock()
	}

	e.mu.Lock()
	if len(e.pending[subject]) == 0 {
		delete(e.pending, subject)
	}
	e.mu.Unlock()

	return nil
}

// pendingFor returns the buffer for one association of a subject, creating
// it when create is true.
func (e *Engine) pendingFor(subject *types.Entity, name string, create bool) *pendingSet {
	e.mu.Lock()
	defer e.mu.Unlock()

	byName := e.pending[subject]
	if byName == nil {
		if !create {
			return nil
		}
		byName = make(map[string]*pendingSet)
		e.pending[subject] = byName
	}
	set := byName[name]
	if set == nil && create {
		set = &pendingSet{}
		byName[name] = set
	}
	return set
}
