// Package registry holds the declare-time catalog of associations: which
// entity type relates to which, under what name, with what cardinality. The
// catalog is populated once at startup and immutable after Freeze; resolution
// maps a (subject type, association name) pair to the canonical binding the
// link store operates on.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mesh-intelligence/tether/pkg/types"
)

// Registry maps subject types to their declared associations.
type Registry struct {
	mu     sync.RWMutex
	frozen bool
	decls  map[string]map[string]types.Declaration
}

// New creates an empty, unfrozen registry.
func New() *Registry {
	return &Registry{
		decls: make(map[string]map[string]types.Declaration),
	}
}

// Declare registers an association. Declarations are immutable once
// registered: redeclaring the same (subject, name) pair returns
// ErrDuplicateAssociation, and any Declare after Freeze returns
// ErrRegistryFrozen. Self-referential declarations (Subject == Target)
// must be many-to-many.
func (r *Registry) Declare(d types.Declaration) error {
	if d.Name == "" || d.Subject == "" || d.Target == "" {
		return types.ErrInvalidData
	}
	if d.Subject == d.Target && d.Cardinality == types.OneToMany {
		return types.ErrSelfOneToMany
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return types.ErrRegistryFrozen
	}

	byName, ok := r.decls[d.Subject]
	if !ok {
		byName = make(map[string]types.Declaration)
		r.decls[d.Subject] = byName
	}
	if _, exists := byName[d.Name]; exists {
		return fmt.Errorf("%w: %s.%s", types.ErrDuplicateAssociation, d.Subject, d.Name)
	}
	byName[d.Name] = d

	return nil
}

// Freeze seals the registry. Further Declare calls fail; resolution remains
// available. Freeze is idempotent.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Resolve returns the binding and declaration for an association as seen from
// the subject type. Returns ErrUnknownAssociation if the pair was never
// declared.
func (r *Registry) Resolve(subjectType, name string) (types.Binding, types.Declaration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.decls[subjectType][name]
	if !ok {
		return types.Binding{}, types.Declaration{}, fmt.Errorf("%w: %s.%s", types.ErrUnknownAssociation, subjectType, name)
	}
	return bind(d), d, nil
}

// DeclarationsFor returns the declarations registered for a subject type,
// sorted by association name. The result is a copy.
func (r *Registry) DeclarationsFor(subjectType string) []types.Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byName := r.decls[subjectType]
	out := make([]types.Declaration, 0, len(byName))
	for _, d := range byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// bind resolves a declaration to its canonical physical binding.
func bind(d types.Declaration) types.Binding {
	left, right, flipped := Canonicalize(d.Subject, d.Target)

	b := types.Binding{
		Name:        d.Name,
		Left:        left,
		Right:       right,
		Flipped:     flipped,
		Cardinality: d.Cardinality,
		SelfRef:     d.Subject == d.Target,
	}
	if d.Cardinality == types.OneToMany {
		if d.SubjectIsOne {
			b.OneType = d.Subject
		} else {
			b.OneType = d.Target
		}
	}
	return b
}
