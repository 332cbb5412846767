// This file implements JSONL loading for Open.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// orphanCleanup drops rows whose referents did not survive loading.
var orphanCleanup = []string{
	"UPDATE collections SET reference_id = NULL WHERE reference_id IS NOT NULL AND reference_id NOT IN (SELECT collection_id FROM collections)",
	"DELETE FROM tree_nodes WHERE collection_id NOT IN (SELECT collection_id FROM collections)",
	"DELETE FROM facets WHERE collection_id NOT IN (SELECT collection_id FROM collections)",
}

// loadAllJSONL reads every snapshot file and inserts its records. Loading is
// transactional: either every file loads or the database stays empty.
// Malformed lines and records that violate a constraint are skipped, as are
// fields the current schema does not know.
func loadAllJSONL(db *sql.DB, dataDir string) error {
	ctx := context.Background()

	// foreign_keys cannot change inside a transaction, so the load pins one
	// connection and toggles it around the transaction.
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("disabling foreign keys for load: %w", err)
	}
	defer conn.ExecContext(ctx, "PRAGMA foreign_keys = ON")

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback()

	for _, st := range snapshotTables {
		records, err := readJSONL(filepath.Join(dataDir, st.file))
		if err != nil {
			return fmt.Errorf("reading %s: %w", st.file, err)
		}
		if len(records) == 0 {
			continue
		}
		if err := insertRecords(ctx, tx, st, records); err != nil {
			return fmt.Errorf("loading %s into %s: %w", st.file, st.table, err)
		}
	}

	for _, stmt := range orphanCleanup {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("removing orphaned rows: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing load transaction: %w", err)
	}
	return nil
}

// insertRecords inserts parsed records into one table. Only the mapped
// columns are read; a missing column is inserted as NULL.
func insertRecords(ctx context.Context, tx *sql.Tx, st snapshotTable, records []json.RawMessage) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(st.columns)), ", ")
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		st.table, strings.Join(st.columns, ", "), placeholders)

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("preparing insert for %s: %w", st.table, err)
	}
	defer stmt.Close()

	for _, rec := range records {
		var obj map[string]any
		if err := json.Unmarshal(rec, &obj); err != nil {
			continue
		}
		args := make([]any, len(st.columns))
		for i, col := range st.columns {
			args[i] = jsonToColumn(obj[col])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			continue
		}
	}
	return nil
}

// jsonToColumn converts a decoded JSON value to a SQLite argument. Whole
// numbers go back in as integers so that bounds keep their type.
func jsonToColumn(v any) any {
	switch x := v.(type) {
	case float64:
		if x == float64(int64(x)) {
			return int64(x)
		}
		return x
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return nil
		}
		return string(b)
	default:
		return x
	}
}
