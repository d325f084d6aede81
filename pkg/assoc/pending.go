package assoc

import (
	"fmt"

	"github.com/mesh-intelligence/tether/pkg/types"
)

// pendingPartner names one desired partner of a buffered association. Either
// the entity pointer (possibly itself unsaved) or a bare id is known.
type pendingPartner struct {
	id     int64
	entity *types.Entity
}

// matches reports whether two pending partners name the same target.
func (p pendingPartner) matches(other pendingPartner) bool {
	if p.entity != nil && other.entity != nil {
		return p.entity == other.entity
	}
	pid, oid := p.resolvedID(), other.resolvedID()
	return pid != 0 && pid == oid
}

// resolvedID returns the partner's id when one is known yet.
func (p pendingPartner) resolvedID() int64 {
	if p.entity != nil && p.entity.ID != 0 {
		return p.entity.ID
	}
	return p.id
}

// pendingSet buffers the desired partner set for one association of an
// unsaved subject. It is pure desired-state: no edges exist until flush.
type pendingSet struct {
	partners []pendingPartner
}

// assign replaces the desired state wholesale.
func (s *pendingSet) assign(partners []pendingPartner) {
	s.partners = partners
}

// add appends a desired partner. Duplicate targets are rejected with
// ErrUniqueness, mirroring what the store would do at flush time.
func (s *pendingSet) add(p pendingPartner) error {
	for _, existing := range s.partners {
		if existing.matches(p) {
			return fmt.Errorf("%w: partner already pending", types.ErrUniqueness)
		}
	}
	s.partners = append(s.partners, p)
	return nil
}

// remove drops a desired partner. Absent partners are ignored.
func (s *pendingSet) remove(p pendingPartner) {
	kept := s.partners[:0]
	for _, existing := range s.partners {
		if !existing.matches(p) {
			kept = append(kept, existing)
		}
	}
	s.partners = kept
}

// clear empties the desired state.
func (s *pendingSet) clear() {
	s.partners = nil
}

func (s *pendingSet) len() int {
	if s == nil {
		return 0
	}
	return len(s.partners)
}
