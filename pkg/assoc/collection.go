package assoc

import (
	"fmt"

	"github.com/mesh-intelligence/tether/pkg/types"
)

// Collection is the accessor for one declared association as seen from one
// subject entity. Mutations on a persisted subject are transactional against
// the link store; mutations on an unsaved subject buffer desired-state until
// the subject is saved through the engine.
type Collection struct {
	eng     *Engine
	subject *types.Entity
	binding types.Binding
	decl    types.Declaration
}

// Binding returns the resolved binding of this collection's association.
func (c *Collection) Binding() types.Binding {
	return c.binding
}

// partnerType returns the entity type on the other side of the association.
func (c *Collection) partnerType() string {
	return c.binding.OtherType(c.subject.Type)
}

// ref builds the edge reference from the subject to a partner id.
func (c *Collection) ref(partnerID int64) types.EdgeRef {
	return types.EdgeRef{
		SubjectID:   c.subject.ID,
		SubjectType: c.subject.Type,
		PartnerID:   partnerID,
		PartnerType: c.partnerType(),
	}
}

// List returns the linked partner entities. Order is unspecified. For an
// unsaved subject the buffered desired-state is returned, resolving bare ids
// through the entity store.
func (c *Collection) List() ([]*types.Entity, error) {
	if !c.subject.Saved() {
		return c.listPending()
	}

	links, err := c.eng.ledger.Links()
	if err != nil {
		return nil, err
	}
	entities, err := c.eng.ledger.Entities()
	if err != nil {
		return nil, err
	}

	ids, err := links.Partners(c.binding, c.subject.ID, c.subject.Type)
	if err != nil {
		return nil, err
	}

	result := make([]*types.Entity, 0, len(ids))
	for _, id := range ids {
		e, err := entities.Get(id, c.partnerType())
		if err != nil {
			return nil, fmt.Errorf("loading partner %s/%d: %w", c.partnerType(), id, err)
		}
		result = append(result, e)
	}
	return result, nil
}

// listPending resolves the buffered desired-state to entities.
func (c *Collection) listPending() ([]*types.Entity, error) {
	set := c.eng.pendingFor(c.subject, c.binding.Name, false)
	if set.len() == 0 {
		return []*types.Entity{}, nil
	}

	result := make([]*types.Entity, 0, set.len())
	for _, p := range set.partners {
		if p.entity != nil {
			result = append(result, p.entity)
			continue
		}
		entities, err := c.eng.ledger.Entities()
		if err != nil {
			return nil, err
		}
		e, err := entities.Get(p.id, c.partnerType())
		if err != nil {
			return nil, fmt.Errorf("loading pending partner %s/%d: %w", c.partnerType(), p.id, err)
		}
		result = append(result, e)
	}
	return result, nil
}

// Assign replaces the collection with the given partners: edges no longer
// present are removed and new ones added, as one transaction. On an unsaved
// subject the desired state is buffered until Save.
func (c *Collection) Assign(items []*types.Entity) error {
	if c.binding.Restricted(c.subject.Type) && len(items) > 1 {
		return fmt.Errorf("%w: %s side of %s holds at most one link",
			types.ErrUniqueness, c.subject.Type, c.binding.Name)
	}

	if !c.subject.Saved() {
		partners := make([]pendingPartner, 0, len(items))
		for _, item := range items {
			partners = append(partners, pendingPartner{entity: item})
		}
		c.eng.pendingFor(c.subject, c.binding.Name, true).assign(partners)
		return nil
	}

	links, err := c.eng.ledger.Links()
	if err != nil {
		return err
	}

	desired, err := c.persistPartners(items)
	if err != nil {
		return err
	}

	current, err := links.Partners(c.binding, c.subject.ID, c.subject.Type)
	if err != nil {
		return err
	}

	currentSet := make(map[int64]bool, len(current))
	for _, id := range current {
		currentSet[id] = true
	}
	desiredSet := make(map[int64]bool, len(desired))
	for _, id := range desired {
		desiredSet[id] = true
	}

	var removes, adds []types.EdgeRef
	for _, id := range current {
		if !desiredSet[id] {
			removes = append(removes, c.ref(id))
		}
	}
	for _, id := range desired {
		if !currentSet[id] {
			adds = append(adds, c.ref(id))
		}
	}

	return links.Apply(c.binding, removes, adds)
}

// AssignIDs replaces the collection by partner ids. The resulting edge set is
// identical to assigning the loaded entities.
func (c *Collection) AssignIDs(ids []int64) error {
	if !c.subject.Saved() {
		if c.binding.Restricted(c.subject.Type) && len(ids) > 1 {
			return fmt.Errorf("%w: %s side of %s holds at most one link",
				types.ErrUniqueness, c.subject.Type, c.binding.Name)
		}
		partners := make([]pendingPartner, 0, len(ids))
		for _, id := range ids {
			partners = append(partners, pendingPartner{id: id})
		}
		c.eng.pendingFor(c.subject, c.binding.Name, true).assign(partners)
		return nil
	}

	entities, err := c.eng.ledger.Entities()
	if err != nil {
		return err
	}
	items := make([]*types.Entity, 0, len(ids))
	for _, id := range ids {
		e, err := entities.Get(id, c.partnerType())
		if err != nil {
			return fmt.Errorf("resolving partner %s/%d: %w", c.partnerType(), id, err)
		}
		items = append(items, e)
	}
	return c.Assign(items)
}

// Append links the given partners without clearing existing edges. The
// cardinality guard applies.
func (c *Collection) Append(items ...*types.Entity) error {
	if !c.subject.Saved() {
		set := c.eng.pendingFor(c.subject, c.binding.Name, true)
		if c.binding.Restricted(c.subject.Type) && set.len()+len(items) > 1 {
			return fmt.Errorf("%w: %s side of %s holds at most one link",
				types.ErrUniqueness, c.subject.Type, c.binding.Name)
		}
		for _, item := range items {
			if err := set.add(pendingPartner{entity: item}); err != nil {
				return err
			}
		}
		return nil
	}

	links, err := c.eng.ledger.Links()
	if err != nil {
		return err
	}

	ids, err := c.persistPartners(items)
	if err != nil {
		return err
	}

	adds := make([]types.EdgeRef, 0, len(ids))
	for _, id := range ids {
		adds = append(adds, c.ref(id))
	}
	return links.Apply(c.binding, nil, adds)
}

// Remove deletes the edges to the given partners. Partners that are not
// linked are ignored.
func (c *Collection) Remove(items ...*types.Entity) error {
	if !c.subject.Saved() {
		set := c.eng.pendingFor(c.subject, c.binding.Name, false)
		if set == nil {
			return nil
		}
		for _, item := range items {
			set.remove(pendingPartner{entity: item})
		}
		return nil
	}

	links, err := c.eng.ledger.Links()
	if err != nil {
		return err
	}

	var removes []types.EdgeRef
	for _, item := range items {
		if item == nil || !item.Saved() {
			continue
		}
		removes = append(removes, c.ref(item.ID))
	}
	return links.Apply(c.binding, removes, nil)
}

// Clear removes every edge of this association, through the per-edge destroy
// path. Clearing an empty collection succeeds.
func (c *Collection) Clear() error {
	if !c.subject.Saved() {
		c.eng.pendingFor(c.subject, c.binding.Name, true).clear()
		return nil
	}

	links, err := c.eng.ledger.Links()
	if err != nil {
		return err
	}
	return links.Clear(c.binding, c.subject.ID, c.subject.Type)
}

// CreateLinked creates a partner entity with the given name and attributes,
// persists it, and links it. The cardinality guard runs before the edge is
// written; on a guard rejection the partner remains persisted but unlinked.
func (c *Collection) CreateLinked(name string, attrs map[string]any) (*types.Entity, error) {
	entities, err := c.eng.ledger.Entities()
	if err != nil {
		return nil, err
	}

	partner := &types.Entity{
		Type:  c.partnerType(),
		Name:  name,
		Attrs: attrs,
	}
	if _, err := entities.Save(partner); err != nil {
		return nil, err
	}

	if err := c.Append(partner); err != nil {
		return nil, err
	}
	return partner, nil
}

// Count returns the number of linked partners. For an unsaved subject it is
// the size of the buffered desired-state.
func (c *Collection) Count() (int, error) {
	if !c.subject.Saved() {
		return c.eng.pendingFor(c.subject, c.binding.Name, false).len(), nil
	}

	links, err := c.eng.ledger.Links()
	if err != nil {
		return 0, err
	}
	return links.Count(c.binding, c.subject.ID, c.subject.Type)
}

// IsEmpty reports whether the collection has no linked partners.
func (c *Collection) IsEmpty() (bool, error) {
	n, err := c.Count()
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// persistPartners saves any unsaved partner entities and returns the partner
// id list. Partner validation failures abort before any edge mutation.
func (c *Collection) persistPartners(items []*types.Entity) ([]int64, error) {
	entities, err := c.eng.ledger.Entities()
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if item == nil {
			return nil, types.ErrInvalidData
		}
		if !item.Saved() {
			if _, err := entities.Save(item); err != nil {
				return nil, fmt.Errorf("saving partner: %w", err)
			}
		}
		ids = append(ids, item.ID)
	}
	return ids, nil
}
