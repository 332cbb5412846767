// This file implements the collections table accessor for the SQLite backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mesh-intelligence/catalog/pkg/types"
)

func scanCollection(s scanner) (*types.Collection, error) {
	var (
		c           types.Collection
		query       sql.NullString
		referenceID sql.NullString
		createdAt   string
		updatedAt   string
	)
	if err := s.Scan(&c.CollectionID, &c.Name, &c.Slug, &query, &referenceID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if query.Valid {
		q := query.String
		c.Query = &q
	}
	if referenceID.Valid {
		r := referenceID.String
		c.ReferenceID = &r
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

func scanCollections(rows *sql.Rows) ([]*types.Collection, error) {
	defer rows.Close()

	out := []*types.Collection{}
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning collection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func getCollection(ctx context.Context, q queryer, id string) (*types.Collection, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	c, err := scanCollection(q.QueryRowContext(ctx,
		"SELECT "+collectionColumns+" FROM collections WHERE collection_id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("collection %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting collection %s: %w", id, err)
	}
	return c, nil
}

// requireCollection returns ErrNotFound unless the collection exists.
func requireCollection(ctx context.Context, q queryer, id string) error {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM collections WHERE collection_id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("collection %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", id, err)
	}
	return nil
}

// checkNameFree returns ErrDuplicateName if another collection already uses
// the name or the slug.
func checkNameFree(ctx context.Context, q queryer, c *types.Collection) error {
	var other string
	err := q.QueryRowContext(ctx,
		"SELECT name FROM collections WHERE (name = ? OR slug = ?) AND collection_id != ?",
		c.Name, c.Slug, c.CollectionID,
	).Scan(&other)
	if err == nil {
		return fmt.Errorf("%w: %q collides with %q", types.ErrDuplicateName, c.Name, other)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checking name uniqueness: %w", err)
	}
	return nil
}

// checkReference enforces single-level references: the target must exist
// and be plain, and a collection that others point at cannot become a
// reference itself.
func checkReference(ctx context.Context, q queryer, c *types.Collection) error {
	if c.Kind() != types.KindReference {
		return nil
	}
	target, err := getCollection(ctx, q, *c.ReferenceID)
	if err != nil {
		return fmt.Errorf("reference target: %w", err)
	}
	if target.Kind() == types.KindReference {
		return fmt.Errorf("%w: %q is itself a reference", types.ErrChainedReference, target.Name)
	}
	if c.CollectionID == "" {
		return nil
	}
	var referrers int
	if err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM collections WHERE reference_id = ?", c.CollectionID,
	).Scan(&referrers); err != nil {
		return fmt.Errorf("counting referrers: %w", err)
	}
	if referrers > 0 {
		return fmt.Errorf("%w: %q is the target of %d references", types.ErrChainedReference, c.Name, referrers)
	}
	return nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// CreateCollection validates c, assigns a UUID v7 and timestamps, and
// inserts it. The generated ID is also written back into c.
func (b *Backend) CreateCollection(ctx context.Context, c *types.Collection) (id string, err error) {
	leave, err := b.enter()
	if err != nil {
		return "", err
	}
	defer leave()
	start := time.Now()
	defer func() { b.observe("create_collection", start, err) }()

	if c == nil {
		return "", types.ErrInvalidID
	}
	if err := c.Validate(); err != nil {
		return "", err
	}

	draft := *c
	draft.CollectionID = ""
	now := time.Now().UTC()
	newID := generateUUID()

	err = b.withTx(ctx, func(tx *sql.Tx) error {
		if err := checkNameFree(ctx, tx, &draft); err != nil {
			return err
		}
		if err := checkReference(ctx, tx, &draft); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO collections ("+collectionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
			newID, draft.Name, draft.Slug, nullable(draft.Query), nullable(draft.ReferenceID),
			formatTime(now), formatTime(now),
		)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %q", types.ErrDuplicateName, draft.Name)
		}
		if err != nil {
			return fmt.Errorf("inserting collection: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	c.CollectionID = newID
	c.CreatedAt = now
	c.UpdatedAt = now
	if err := b.afterWrite(tableCollections); err != nil {
		return "", err
	}
	b.log.Debug().Str("collection_id", newID).Str("name", c.Name).Msg("collection created")
	return newID, nil
}

// GetCollection returns ErrNotFound if no collection has the ID.
func (b *Backend) GetCollection(ctx context.Context, id string) (*types.Collection, error) {
	leave, err := b.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	return getCollection(ctx, b.db, id)
}

// GetCollectionByName looks a collection up by its exact name.
func (b *Backend) GetCollectionByName(ctx context.Context, name string) (*types.Collection, error) {
	leave, err := b.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	c, err := scanCollection(b.db.QueryRowContext(ctx,
		"SELECT "+collectionColumns+" FROM collections WHERE name = ?", name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("collection %q: %w", name, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting collection %q: %w", name, err)
	}
	return c, nil
}

// collectionsByIDBatch bounds the number of placeholders per query.
const collectionsByIDBatch = 500

// CollectionsByID loads several collections at once.
func (b *Backend) CollectionsByID(ctx context.Context, ids []string) (map[string]*types.Collection, error) {
	leave, err := b.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	out := make(map[string]*types.Collection, len(ids))
	for start := 0; start < len(ids); start += collectionsByIDBatch {
		batch := ids[start:min(start+collectionsByIDBatch, len(ids))]
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(batch)), ", ")
		rows, err := b.db.QueryContext(ctx,
			"SELECT "+collectionColumns+" FROM collections WHERE collection_id IN ("+placeholders+")", args...)
		if err != nil {
			return nil, fmt.Errorf("loading collections: %w", err)
		}
		cs, err := scanCollections(rows)
		if err != nil {
			return nil, err
		}
		for _, c := range cs {
			out[c.CollectionID] = c
		}
	}
	return out, nil
}

// ListCollections returns collections ordered by name.
func (b *Backend) ListCollections(ctx context.Context, filter types.CollectionFilter) ([]*types.Collection, error) {
	leave, err := b.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	var (
		where []string
		args  []any
	)
	if filter.Name != "" {
		where = append(where, "name = ?")
		args = append(args, filter.Name)
	}
	if filter.HasQuery != nil {
		if *filter.HasQuery {
			where = append(where, "query IS NOT NULL AND query != ''")
		} else {
			where = append(where, "(query IS NULL OR query = '')")
		}
	}

	query := "SELECT " + collectionColumns + " FROM collections"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name"
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	return scanCollections(rows)
}

// RootCollections returns collections that are detached or that sit at the
// root of some tree.
func (b *Backend) RootCollections(ctx context.Context) ([]*types.Collection, error) {
	leave, err := b.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	rows, err := b.db.QueryContext(ctx,
		"SELECT "+qualify(collectionColumns, "c")+` FROM collections c
		 WHERE NOT EXISTS (SELECT 1 FROM tree_nodes n WHERE n.collection_id = c.collection_id)
		    OR EXISTS (SELECT 1 FROM tree_nodes n WHERE n.collection_id = c.collection_id AND n.lft = 1)
		 ORDER BY c.name`)
	if err != nil {
		return nil, fmt.Errorf("listing root collections: %w", err)
	}
	return scanCollections(rows)
}

// UpdateCollection rewrites name, slug, query and reference of an existing
// collection.
func (b *Backend) UpdateCollection(ctx context.Context, c *types.Collection) (err error) {
	leave, err := b.enter()
	if err != nil {
		return err
	}
	defer leave()
	start := time.Now()
	defer func() { b.observe("update_collection", start, err) }()

	if c == nil || c.CollectionID == "" {
		return types.ErrInvalidID
	}
	if err := c.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()

	err = b.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireCollection(ctx, tx, c.CollectionID); err != nil {
			return err
		}
		if err := checkNameFree(ctx, tx, c); err != nil {
			return err
		}
		if err := checkReference(ctx, tx, c); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"UPDATE collections SET name = ?, slug = ?, query = ?, reference_id = ?, updated_at = ? WHERE collection_id = ?",
			c.Name, c.Slug, nullable(c.Query), nullable(c.ReferenceID), formatTime(now), c.CollectionID,
		)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %q", types.ErrDuplicateName, c.Name)
		}
		if err != nil {
			return fmt.Errorf("updating collection: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.UpdatedAt = now
	return b.afterWrite(tableCollections)
}

// DeleteCollection removes the collection, each of its tree positions with
// everything below them, and its facets. References to it are cleared.
func (b *Backend) DeleteCollection(ctx context.Context, id string) (err error) {
	leave, err := b.enter()
	if err != nil {
		return err
	}
	defer leave()

	done := b.track("delete_collection")
	defer func() { done("", "", err) }()

	rows, err := b.db.QueryContext(ctx,
		"SELECT DISTINCT tree_id FROM tree_nodes WHERE collection_id = ?", id)
	if err != nil {
		return fmt.Errorf("finding trees of %s: %w", id, err)
	}
	var trees []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			rows.Close()
			return err
		}
		trees = append(trees, t)
	}
	rows.Close()

	release, err := b.locks.acquire(ctx, trees...)
	if err != nil {
		return err
	}
	defer release()

	var shifted int64
	err = b.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireCollection(ctx, tx, id); err != nil {
			return err
		}
		// Positions may nest inside each other, so each pass takes the
		// outermost remaining one.
		for {
			n, err := scanNode(tx.QueryRowContext(ctx,
				"SELECT "+nodeColumns+" FROM tree_nodes WHERE collection_id = ? ORDER BY tree_id, lft LIMIT 1", id))
			if errors.Is(err, sql.ErrNoRows) {
				break
			}
			if err != nil {
				return fmt.Errorf("reading position of %s: %w", id, err)
			}
			s, err := deleteSubtree(ctx, tx, n)
			if err != nil {
				return err
			}
			shifted += s
		}
		stmts := []string{
			"UPDATE collections SET reference_id = NULL WHERE reference_id = ?",
			"DELETE FROM facets WHERE collection_id = ?",
			"DELETE FROM collections WHERE collection_id = ?",
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return fmt.Errorf("deleting collection %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	b.metrics.ObserveShift(shifted)
	b.refreshNodeGauge(ctx)
	return b.afterWrite(tableCollections, tableTreeNodes, tableFacets)
}
