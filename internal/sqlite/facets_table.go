// This file implements the facet registry for the SQLite backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mesh-intelligence/catalog/pkg/types"
)

// isUniqueViolation reports whether err comes from a UNIQUE or PRIMARY KEY
// constraint.
func isUniqueViolation(err error) bool {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}

func scanFacet(s scanner) (*types.FacetAssignment, error) {
	var (
		f         types.FacetAssignment
		createdAt string
	)
	if err := s.Scan(&f.FacetID, &f.CollectionID, &f.Order, &f.FacetName, &createdAt); err != nil {
		return nil, err
	}
	f.CreatedAt = parseTime(createdAt)
	return &f, nil
}

// IsPositionTaken reports whether the collection already has a facet at
// order. Advisory only.
func (b *Backend) IsPositionTaken(ctx context.Context, collectionID string, order int) (bool, error) {
	leave, err := b.enter()
	if err != nil {
		return false, err
	}
	defer leave()

	return exists(ctx, b.db,
		"SELECT 1 FROM facets WHERE collection_id = ? AND ordinal = ?", collectionID, order)
}

// IsDuplicateFacet reports whether the collection already has the facet.
// Advisory only.
func (b *Backend) IsDuplicateFacet(ctx context.Context, collectionID, facetName string) (bool, error) {
	leave, err := b.enter()
	if err != nil {
		return false, err
	}
	defer leave()

	return exists(ctx, b.db,
		"SELECT 1 FROM facets WHERE collection_id = ? AND facet_name = ?", collectionID, facetName)
}

func exists(ctx context.Context, q queryer, query string, args ...any) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking facets: %w", err)
	}
	return true, nil
}

// AddFacet assigns a ranked facet to a collection. The pre-checks report
// ErrPositionTaken and ErrDuplicateFacet; a writer that passed them but lost
// the race to the unique index gets ErrFacetConflict.
func (b *Backend) AddFacet(ctx context.Context, collectionID string, order int, facetName string) (f *types.FacetAssignment, err error) {
	leave, err := b.enter()
	if err != nil {
		return nil, err
	}
	defer leave()
	start := time.Now()
	defer func() { b.observe("add_facet", start, err) }()

	f = &types.FacetAssignment{
		CollectionID: collectionID,
		Order:        order,
		FacetName:    facetName,
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if err := requireCollection(ctx, b.db, collectionID); err != nil {
		return nil, err
	}

	taken, err := exists(ctx, b.db,
		"SELECT 1 FROM facets WHERE collection_id = ? AND ordinal = ?", collectionID, order)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("%w: %d", types.ErrPositionTaken, order)
	}
	dup, err := exists(ctx, b.db,
		"SELECT 1 FROM facets WHERE collection_id = ? AND facet_name = ?", collectionID, facetName)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, fmt.Errorf("%w: %q", types.ErrDuplicateFacet, facetName)
	}

	if err := b.insertFacet(ctx, f); err != nil {
		return nil, err
	}
	if err := b.afterWrite(tableFacets); err != nil {
		return nil, err
	}
	return f, nil
}

// insertFacet stores f without pre-checks, filling FacetID and CreatedAt.
func (b *Backend) insertFacet(ctx context.Context, f *types.FacetAssignment) error {
	f.FacetID = generateUUID()
	f.CreatedAt = time.Now().UTC()

	_, err := b.db.ExecContext(ctx,
		"INSERT INTO facets ("+facetColumns+") VALUES (?, ?, ?, ?, ?)",
		f.FacetID, f.CollectionID, f.Order, f.FacetName, formatTime(f.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %q at %d", types.ErrFacetConflict, f.FacetName, f.Order)
	}
	if err != nil {
		return fmt.Errorf("inserting facet: %w", err)
	}
	return nil
}

// RemoveFacet deletes one facet assignment.
func (b *Backend) RemoveFacet(ctx context.Context, facetID string) error {
	leave, err := b.enter()
	if err != nil {
		return err
	}
	defer leave()

	r, err := b.db.ExecContext(ctx, "DELETE FROM facets WHERE facet_id = ?", facetID)
	if err != nil {
		return fmt.Errorf("deleting facet %s: %w", facetID, err)
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return fmt.Errorf("facet %s: %w", facetID, types.ErrNotFound)
	}
	return b.afterWrite(tableFacets)
}

// Facets returns the facets of a collection in rank order.
func (b *Backend) Facets(ctx context.Context, collectionID string) ([]*types.FacetAssignment, error) {
	leave, err := b.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	rows, err := b.db.QueryContext(ctx,
		"SELECT "+facetColumns+" FROM facets WHERE collection_id = ? ORDER BY ordinal", collectionID)
	if err != nil {
		return nil, fmt.Errorf("listing facets of %s: %w", collectionID, err)
	}
	defer rows.Close()

	out := []*types.FacetAssignment{}
	for rows.Next() {
		f, err := scanFacet(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning facet: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
