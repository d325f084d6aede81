package assoc

import (
	"fmt"

	"github.com/mesh-intelligence/tether/pkg/types"
)

// Singular is the accessor for the restricted side of a one-to-many
// association: at most one partner is ever linked.
type Singular struct {
	col *Collection
}

// Get returns the linked partner, or ok == false when the association holds
// no edge. Absence is not an error.
func (s *Singular) Get() (*types.Entity, bool, error) {
	items, err := s.col.List()
	if err != nil {
		return nil, false, err
	}
	if len(items) == 0 {
		return nil, false, nil
	}
	if len(items) > 1 {
		// The guard makes this unreachable; surface it rather than pick one.
		return nil, false, fmt.Errorf("%w: restricted side holds %d links", types.ErrUniqueness, len(items))
	}
	return items[0], true, nil
}

// Set replaces the linked partner. The old edge is removed and the new one
// added in a single transaction, so a legitimate replace never trips the
// cardinality guard. Set(nil) clears.
func (s *Singular) Set(partner *types.Entity) error {
	if partner == nil {
		return s.Unset()
	}
	return s.col.Assign([]*types.Entity{partner})
}

// Unset removes the link, if any. Unsetting an empty side succeeds.
func (s *Singular) Unset() error {
	return s.col.Assign(nil)
}
