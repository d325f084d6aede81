// Canonical orientation rule for the shared edge table. Every unordered pair
// of types maps to exactly one physical column order, so queries from either
// side know which column pair to filter on.
package registry

// Canonicalize returns the two types in canonical storage order. The order is
// the lexicographic order of the type names; flipped reports whether the
// arguments were swapped. Equal types return flipped = false. Pure function,
// no failure modes.
func Canonicalize(typeA, typeB string) (left, right string, flipped bool) {
	if typeB < typeA {
		return typeB, typeA, true
	}
	return typeA, typeB, false
}
