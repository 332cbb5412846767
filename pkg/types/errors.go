package types

import "errors"

// Lifecycle errors.
var (
	ErrCatalogClosed = errors.New("catalog is closed")
	ErrAlreadyOpen   = errors.New("catalog is already open")
)

// Entity errors.
var (
	ErrNotFound         = errors.New("entity not found")
	ErrInvalidID        = errors.New("invalid entity ID")
	ErrInvalidName      = errors.New("invalid name")
	ErrDuplicateName    = errors.New("duplicate name")
	ErrChainedReference = errors.New("reference must point at a plain collection")
)

// Tree errors. None of these are retried: a structural mutation that fails
// leaves every bound exactly as it was.
var (
	ErrInvalidParent = errors.New("invalid parent")
	ErrCyclicMove    = errors.New("cannot move a node under itself or its descendants")
	ErrDetachedNode  = errors.New("collection has no tree position")
	ErrNodeMismatch  = errors.New("tree node belongs to another collection")
	ErrCorruptTree   = errors.New("nested-set bounds are inconsistent")
)

// Facet errors. ErrPositionTaken and ErrDuplicateFacet come from the advisory
// pre-checks; ErrFacetConflict comes from the storage-level unique index when
// a concurrent writer slipped between pre-check and insert.
var (
	ErrPositionTaken  = errors.New("facet position already taken")
	ErrDuplicateFacet = errors.New("facet already assigned to collection")
	ErrFacetConflict  = errors.New("facet assignment conflicts with a concurrent write")
)
