package sqlite

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/semaphore"
)

// treeLocks hands out one mutation permit per tree. A permit keeps two
// writers of the same tree from queueing on SQLite's busy handler; the
// transaction alone is what keeps bounds consistent.
type treeLocks struct {
	mu    sync.Mutex
	trees map[string]*semaphore.Weighted
}

func newTreeLocks() *treeLocks {
	return &treeLocks{trees: make(map[string]*semaphore.Weighted)}
}

func (l *treeLocks) get(treeID string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.trees[treeID]
	if !ok {
		s = semaphore.NewWeighted(1)
		l.trees[treeID] = s
	}
	return s
}

// acquire takes the permits of every named tree in sorted order, so that two
// cross-tree moves cannot deadlock each other. It returns a release func, or
// ctx's error if ctx ends first.
func (l *treeLocks) acquire(ctx context.Context, treeIDs ...string) (func(), error) {
	ids := slices.Clone(treeIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	held := make([]*semaphore.Weighted, 0, len(ids))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Release(1)
		}
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		s := l.get(id)
		if err := s.Acquire(ctx, 1); err != nil {
			release()
			return nil, err
		}
		held = append(held, s)
	}
	return release, nil
}
