// This file provides the JSONL snapshot files: atomic writes of whole tables
// and line-oriented reads that skip malformed records.
package sqlite

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Table names, also used as the keys of the dirty set.
const (
	tableCollections = "collections"
	tableTreeNodes   = "tree_nodes"
	tableFacets      = "facets"
)

// snapshotTable describes how one SQLite table maps to its JSONL file.
type snapshotTable struct {
	file    string
	table   string
	orderBy string
	columns []string
}

// snapshotTables is in load order: referenced tables first.
var snapshotTables = []snapshotTable{
	{
		file:    "collections.jsonl",
		table:   tableCollections,
		orderBy: "name",
		columns: []string{"collection_id", "name", "slug", "query", "reference_id", "created_at", "updated_at"},
	},
	{
		file:    "tree_nodes.jsonl",
		table:   tableTreeNodes,
		orderBy: "tree_id, lft",
		columns: []string{"node_id", "collection_id", "parent_id", "tree_id", "lft", "rgt", "depth", "is_visible", "is_virtual", "created_at"},
	},
	{
		file:    "facets.jsonl",
		table:   tableFacets,
		orderBy: "collection_id, ordinal",
		columns: []string{"facet_id", "collection_id", "ordinal", "facet_name", "created_at"},
	},
}

func lookupSnapshotTable(name string) (snapshotTable, bool) {
	for _, st := range snapshotTables {
		if st.table == name {
			return st, true
		}
	}
	return snapshotTable{}, false
}

// initJSONLFiles creates empty snapshot files that do not exist yet.
func initJSONLFiles(dataDir string) error {
	for _, st := range snapshotTables {
		path := filepath.Join(dataDir, st.file)
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("checking %s: %w", st.file, err)
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return fmt.Errorf("creating %s: %w", st.file, err)
		}
	}
	return nil
}

// persistTables rewrites the snapshot of each named table from the current
// database state. Snapshots are taken under persistMu so that the last
// writer always leaves the newest state on disk.
func (b *Backend) persistTables(tables ...string) error {
	b.persistMu.Lock()
	defer b.persistMu.Unlock()

	for _, name := range tables {
		st, ok := lookupSnapshotTable(name)
		if !ok {
			return fmt.Errorf("no snapshot for table %q", name)
		}
		records, err := dumpTable(b.db, st)
		if err != nil {
			return fmt.Errorf("reading %s: %w", st.table, err)
		}
		if err := writeJSONL(filepath.Join(b.config.DataDir, st.file), records); err != nil {
			return fmt.Errorf("persisting %s: %w", st.file, err)
		}
	}
	return nil
}

// dumpTable renders every row of a table as one JSON object per record,
// keyed by column name.
func dumpTable(q queryer, st snapshotTable) ([]json.RawMessage, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(st.columns, ", "), st.table, st.orderBy)
	rows, err := q.QueryContext(context.Background(), query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []json.RawMessage
	for rows.Next() {
		values := make([]any, len(st.columns))
		ptrs := make([]any, len(st.columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		obj := make(map[string]any, len(st.columns))
		for i, col := range st.columns {
			if raw, ok := values[i].([]byte); ok {
				obj[col] = string(raw)
				continue
			}
			obj[col] = values[i]
		}
		rec, err := json.Marshal(obj)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// readJSONL returns each non-empty, well-formed line of a JSONL file.
// Malformed lines are skipped.
func readJSONL(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || !json.Valid(line) {
			continue
		}
		records = append(records, json.RawMessage(append([]byte(nil), line...)))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, nil
}

// writeJSONL replaces path with records, one per line, via temp file, fsync
// and rename, so readers never observe a partial snapshot.
func writeJSONL(path string, records []json.RawMessage) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err = w.Write(rec); err != nil {
			return fmt.Errorf("writing record: %w", err)
		}
		if err = w.WriteByte('\n'); err != nil {
			return fmt.Errorf("writing newline: %w", err)
		}
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("flushing buffer: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
