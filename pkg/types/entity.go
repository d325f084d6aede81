// Entity is the persisted endpoint type for the link engine. The engine
// identifies entities by (ID, Type); everything else is carried along so the
// accessor layer and CLI have something concrete to link.
package types

import "time"

// Entity represents a stored entity instance. ID is the integer identity used
// by the edge table; UID is a public UUID v7 string assigned on first save.
// An entity with ID == 0 has not been persisted yet.
type Entity struct {
	// ID is the integer identity referenced by edges. Zero until saved.
	ID int64 `json:"entity_id"`

	// UID is a public UUID v7 identifier, generated on first save.
	UID string `json:"uid"`

	// Type is the entity type name, e.g. "room" or "floor".
	Type string `json:"entity_type"`

	// Name is a required human-readable label.
	Name string `json:"name"`

	// Attrs holds arbitrary attributes, persisted as a JSON column.
	Attrs map[string]any `json:"attrs,omitempty"`

	// CreatedAt and UpdatedAt are maintained by the store.
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Saved reports whether the entity has a stable storage identity.
func (e *Entity) Saved() bool {
	return e != nil && e.ID != 0
}

// Validate checks that the entity can be persisted. Returns ErrValidation
// wrapped failures; the save path must not write anything when this fails.
func (e *Entity) Validate() error {
	if e.Type == "" {
		return ErrValidation
	}
	if e.Name == "" {
		return ErrValidation
	}
	return nil
}
