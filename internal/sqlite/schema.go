// Package sqlite implements the SQLite backend for the Tether association
// engine: the shared any_links edge table and the entities table it connects.
package sqlite

// Schema DDL for the edge and entity tables. The unique index on the edge
// 4-tuple is the concurrency backstop: two transactions inserting the same
// edge resolve to one winner, the other fails with a uniqueness violation.
const (
	createAnyLinks = `CREATE TABLE any_links (
    id1 INTEGER NOT NULL,
    type1 TEXT NOT NULL,
    id2 INTEGER NOT NULL,
    type2 TEXT NOT NULL,
    created_at TEXT NOT NULL
);`

	createAnyLinksUnique = `CREATE UNIQUE INDEX idx_any_links_tuple
    ON any_links (id1, type1, id2, type2);`

	createAnyLinksSide1 = `CREATE INDEX idx_any_links_side1
    ON any_links (id1, type1, type2);`

	createAnyLinksSide2 = `CREATE INDEX idx_any_links_side2
    ON any_links (id2, type2, type1);`

	createEntities = `CREATE TABLE entities (
    entity_id INTEGER PRIMARY KEY AUTOINCREMENT,
    uid TEXT NOT NULL UNIQUE,
    entity_type TEXT NOT NULL,
    name TEXT NOT NULL,
    attrs TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createEntitiesType = `CREATE INDEX idx_entities_type
    ON entities (entity_type);`
)

// schemaStatements lists all DDL statements in execution order.
var schemaStatements = []string{
	createAnyLinks,
	createAnyLinksUnique,
	createAnyLinksSide1,
	createAnyLinksSide2,
	createEntities,
	createEntitiesType,
}
