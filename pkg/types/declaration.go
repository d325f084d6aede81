// Association declarations: per-type relations, cardinality classes, and the
// resolved binding the link store operates on.
package types

// Cardinality classifies a declared association.
type Cardinality int

const (
	// ManyToMany places no per-side limit on linked partners.
	ManyToMany Cardinality = iota

	// OneToMany restricts one side of the association to at most one
	// linked partner. Declaration.SubjectIsOne marks which side.
	OneToMany
)

// String returns the declaration-file name of the cardinality class.
func (c Cardinality) String() string {
	switch c {
	case ManyToMany:
		return "many_to_many"
	case OneToMany:
		return "one_to_many"
	default:
		return "unknown"
	}
}

// Declaration describes a named association from a subject type to a target
// type. Declarations are immutable once registered. Subject == Target declares
// a self-referential association; those are always many-to-many.
type Declaration struct {
	// Name is the association name as seen from the subject, e.g. "floors".
	Name string

	// Subject is the declaring entity type.
	Subject string

	// Target is the partner entity type.
	Target string

	// Cardinality is the cardinality class of the association.
	Cardinality Cardinality

	// SubjectIsOne marks the subject as the restricted "one" side of a
	// OneToMany declaration. Ignored for ManyToMany.
	SubjectIsOne bool
}

// Binding is a resolved declaration: the canonical physical orientation plus
// the cardinality facts the link store needs at write time. Bindings are
// produced by the registry and treated as values.
type Binding struct {
	// Name is the association name the binding was resolved from.
	Name string

	// Left and Right are the endpoint types in canonical orientation.
	Left  string
	Right string

	// Flipped records whether the declaring subject sits on the canonical
	// right side. Queries are side-agnostic; this is informational.
	Flipped bool

	// Cardinality is the cardinality class of the association.
	Cardinality Cardinality

	// OneType is the type whose side holds at most one link, or empty for
	// many-to-many.
	OneType string

	// SelfRef is true when both endpoints share a type, which makes the
	// store maintain mirror edges.
	SelfRef bool
}

// Restricted reports whether the given type is the capped side of the binding.
func (b Binding) Restricted(entityType string) bool {
	return b.OneType != "" && b.OneType == entityType
}

// OtherType returns the partner type for the given subject type. For
// self-referential bindings both sides are the same type.
func (b Binding) OtherType(subjectType string) string {
	if subjectType == b.Left {
		return b.Right
	}
	return b.Left
}
