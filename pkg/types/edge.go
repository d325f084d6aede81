// Edge is the sole persisted record of the link engine: one row in the
// shared any_links table connecting two typed entity identities.
package types

import "time"

// Edge represents a stored link between two typed entity identities.
// The (ID1, Type1, ID2, Type2) tuple is globally unique, and (Type1, Type2)
// is always in canonical orientation. For self-type associations every edge
// has a mirror row with the endpoints swapped.
type Edge struct {
	// ID1 is the entity id on the canonical left side.
	ID1 int64 `json:"id1"`

	// Type1 is the entity type on the canonical left side.
	Type1 string `json:"type1"`

	// ID2 is the entity id on the canonical right side.
	ID2 int64 `json:"id2"`

	// Type2 is the entity type on the canonical right side.
	Type2 string `json:"type2"`

	// CreatedAt is the timestamp of creation. Informational only.
	CreatedAt time.Time `json:"created_at"`
}

// EdgeRef names an edge in caller orientation: the subject side is whichever
// entity the caller is operating on. Stores canonicalize before touching rows,
// so an EdgeRef and its swapped form refer to the same physical edge.
type EdgeRef struct {
	SubjectID   int64
	SubjectType string
	PartnerID   int64
	PartnerType string
}

// Swapped returns the same edge seen from the partner's side.
func (r EdgeRef) Swapped() EdgeRef {
	return EdgeRef{
		SubjectID:   r.PartnerID,
		SubjectType: r.PartnerType,
		PartnerID:   r.SubjectID,
		PartnerType: r.SubjectType,
	}
}
