// This file holds the SQLite schema for the catalog backend.
package sqlite

import "strings"

// Schema DDL. Bounds are the only structural truth of tree_nodes; parent_id
// is kept alongside so that direct parents can be read without an interval
// scan.
const (
	createCollections = `CREATE TABLE collections (
    collection_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    slug TEXT NOT NULL,
    query TEXT,
    reference_id TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    FOREIGN KEY (reference_id) REFERENCES collections(collection_id) ON DELETE SET NULL
);`

	createTreeNodes = `CREATE TABLE tree_nodes (
    node_id TEXT PRIMARY KEY,
    collection_id TEXT NOT NULL,
    parent_id TEXT,
    tree_id TEXT NOT NULL,
    lft INTEGER NOT NULL,
    rgt INTEGER NOT NULL,
    depth INTEGER NOT NULL,
    is_visible INTEGER NOT NULL DEFAULT 1,
    is_virtual INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    CHECK (lft < rgt),
    FOREIGN KEY (collection_id) REFERENCES collections(collection_id)
);`

	createFacets = `CREATE TABLE facets (
    facet_id TEXT PRIMARY KEY,
    collection_id TEXT NOT NULL,
    ordinal INTEGER NOT NULL,
    facet_name TEXT NOT NULL,
    created_at TEXT NOT NULL,
    FOREIGN KEY (collection_id) REFERENCES collections(collection_id) ON DELETE CASCADE
);`
)

// Index DDL. The facet indexes are what turn a lost pre-check race into
// ErrFacetConflict.
const (
	indexCollectionsName = `CREATE UNIQUE INDEX idx_collections_name ON collections(name);`
	indexCollectionsSlug = `CREATE UNIQUE INDEX idx_collections_slug ON collections(slug);`
	indexTreeBounds      = `CREATE INDEX idx_tree_nodes_bounds ON tree_nodes(tree_id, lft, rgt);`
	indexTreeCollection  = `CREATE INDEX idx_tree_nodes_collection ON tree_nodes(collection_id, created_at);`
	indexFacetsOrdinal   = `CREATE UNIQUE INDEX idx_facets_ordinal ON facets(collection_id, ordinal);`
	indexFacetsName      = `CREATE UNIQUE INDEX idx_facets_name ON facets(collection_id, facet_name);`
)

// schemaSQL is the complete schema, executed once on Open.
var schemaSQL = strings.Join([]string{
	createCollections,
	createTreeNodes,
	createFacets,
	indexCollectionsName,
	indexCollectionsSlug,
	indexTreeBounds,
	indexTreeCollection,
	indexFacetsOrdinal,
	indexFacetsName,
}, "\n")

// nodeColumns is the select list understood by scanNode.
const nodeColumns = "node_id, collection_id, parent_id, tree_id, lft, rgt, depth, is_visible, is_virtual, created_at"

// collectionColumns is the select list understood by scanCollection.
const collectionColumns = "collection_id, name, slug, query, reference_id, created_at, updated_at"

// facetColumns is the select list understood by scanFacet.
const facetColumns = "facet_id, collection_id, ordinal, facet_name, created_at"
