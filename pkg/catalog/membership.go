package catalog

import (
	"context"
	"maps"
	"slices"

	"github.com/mesh-intelligence/catalog/pkg/types"
)

// MembershipSource is one query-bearing collection as seen by a record
// indexer: a record matching Query belongs to the collection and to every
// collection named in Ancestors.
type MembershipSource struct {
	Collection *types.Collection `json:"collection" yaml:"collection"`
	Query      string            `json:"query" yaml:"query"`
	// Ancestors names the query-less collections on the canonical path to
	// the root, virtual boundaries included.
	Ancestors []string `json:"ancestors" yaml:"ancestors"`
}

// MembershipSources lists every collection with a query that is evaluated
// locally. Collections whose query starts with types.HostedQueryPrefix are
// skipped.
func (c *Catalog) MembershipSources(ctx context.Context) ([]MembershipSource, error) {
	withQuery := true
	colls, err := c.src.ListCollections(ctx, types.CollectionFilter{HasQuery: &withQuery})
	if err != nil {
		return nil, err
	}

	var sources []MembershipSource
	for _, coll := range colls {
		if coll.IsHosted() {
			continue
		}
		ancestors, err := c.queryLessAncestors(ctx, coll)
		if err != nil {
			return nil, err
		}
		sources = append(sources, MembershipSource{
			Collection: coll,
			Query:      *coll.Query,
			Ancestors:  ancestors,
		})
	}
	return sources, nil
}

func (c *Catalog) queryLessAncestors(ctx context.Context, coll *types.Collection) ([]string, error) {
	path, err := c.Path(ctx, coll.CollectionID, types.PathOptions{FollowVirtual: true})
	if isDetached(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(path) < 2 {
		return nil, nil
	}

	ids := make([]string, 0, len(path)-1)
	for _, n := range path[1:] {
		ids = append(ids, n.CollectionID)
	}
	byID, err := c.src.CollectionsByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, id := range ids {
		a, ok := byID[id]
		if !ok || a.HasQuery() {
			continue
		}
		names = append(names, a.Name)
	}
	return names, nil
}

// Memberships returns, sorted and without repeats, the names of the
// collections whose query match accepts together with their query-less
// ancestors.
func (c *Catalog) Memberships(ctx context.Context, match func(query string) bool) ([]string, error) {
	sources, err := c.MembershipSources(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, s := range sources {
		if !match(s.Query) {
			continue
		}
		seen[s.Collection.Name] = true
		for _, a := range s.Ancestors {
			seen[a] = true
		}
	}
	return slices.Sorted(maps.Keys(seen)), nil
}
