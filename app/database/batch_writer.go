package database

import (
	"context"
	"fmt"
	"strings"
)

// Rows per INSERT statement. Keeps len(Columns)*maxRowsPerStatement well
// under the Postgres parameter cap of 65535.
const maxRowsPerStatement = 1000

// Batch is a set of uniformly-shaped rows bound for one table. KeyCols
// names the conflict target for the upsert; when empty the rows are
// inserted plainly and duplicates are accepted.
type Batch struct {
	Table   string
	KeyCols []string
	Columns []string
	Rows    [][]any
}

func (b Batch) validate() error {
	if b.Table == "" {
		return fmt.Errorf("batch without table name")
	}
	if len(b.Columns) == 0 {
		return fmt.Errorf("batch for %s without columns", b.Table)
	}
	for i, row := range b.Rows {
		if len(row) != len(b.Columns) {
			return fmt.Errorf("batch for %s: row %d has %d values, want %d",
				b.Table, i, len(row), len(b.Columns))
		}
	}
	return nil
}

// BatchWriter persists record batches with last-writer-wins upserts.
type BatchWriter struct {
	db *DB
}

func NewBatchWriter(db *DB) *BatchWriter {
	return &BatchWriter{db: db}
}

// WriteBatches writes all given batches inside a single transaction, in
// argument order so callers can put foreign-key parents first. Either
// every table commits or none does. Empty batches are skipped; when all
// batches are empty no transaction is opened and 0 is returned.
//
// On conflict with a batch's key columns every non-key column is
// overwritten with the incoming value, so repeated cycles stay idempotent
// and the newest cycle wins.
func (w *BatchWriter) WriteBatches(ctx context.Context, batches ...Batch) (int, error) {
	var pending []Batch
	for _, b := range batches {
		if len(b.Rows) == 0 {
			continue
		}
		if err := b.validate(); err != nil {
			return 0, err
		}
		b.Rows = dedupeRows(b)
		pending = append(pending, b)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}

	total := 0
	for _, b := range pending {
		for start := 0; start < len(b.Rows); start += maxRowsPerStatement {
			end := start + maxRowsPerStatement
			if end > len(b.Rows) {
				end = len(b.Rows)
			}

			stmt, args := buildUpsert(b.Table, b.KeyCols, b.Columns, b.Rows[start:end])
			if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
				tx.Rollback()
				return 0, fmt.Errorf("writing %s: %w", b.Table, err)
			}
		}
		total += len(b.Rows)
	}

	if err := tx.Commit(); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("committing transaction: %w", err)
	}

	return total, nil
}

// dedupeRows collapses rows sharing one key tuple, keeping the last
// occurrence's values in the first occurrence's position. Postgres rejects
// a multi-row ON CONFLICT DO UPDATE that touches the same row twice, and
// one cycle can legitimately carry the same trip more than once (two
// sources reporting it, or descriptor and entity id spaces overlapping).
func dedupeRows(b Batch) [][]any {
	if len(b.KeyCols) == 0 || len(b.Rows) < 2 {
		return b.Rows
	}

	keyIdx := make([]int, 0, len(b.KeyCols))
	for _, key := range b.KeyCols {
		for i, col := range b.Columns {
			if col == key {
				keyIdx = append(keyIdx, i)
			}
		}
	}

	seen := make(map[string]int, len(b.Rows))
	deduped := make([][]any, 0, len(b.Rows))
	for _, row := range b.Rows {
		var sb strings.Builder
		for _, i := range keyIdx {
			fmt.Fprintf(&sb, "%v\x00", row[i])
		}
		key := sb.String()
		if pos, ok := seen[key]; ok {
			deduped[pos] = row
			continue
		}
		seen[key] = len(deduped)
		deduped = append(deduped, row)
	}

	return deduped
}

// buildUpsert renders one multi-row INSERT with an ON CONFLICT clause
// derived from the key columns. No key columns means a plain INSERT; all
// columns being keys means ON CONFLICT DO NOTHING.
func buildUpsert(table string, keyCols, columns []string, rows [][]any) (string, []any) {
	var sb strings.Builder
	args := make([]any, 0, len(rows)*len(columns))

	sb.WriteString("INSERT INTO ")
	sb.WriteString(table)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(columns, ", "))
	sb.WriteString(") VALUES ")

	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := range columns {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", len(args)+1)
			args = append(args, row[j])
		}
		sb.WriteString(")")
	}

	if len(keyCols) > 0 {
		sb.WriteString(" ON CONFLICT (")
		sb.WriteString(strings.Join(keyCols, ", "))
		sb.WriteString(")")

		keys := make(map[string]bool, len(keyCols))
		for _, k := range keyCols {
			keys[k] = true
		}
		var updates []string
		for _, col := range columns {
			if !keys[col] {
				updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
			}
		}

		if len(updates) == 0 {
			sb.WriteString(" DO NOTHING")
		} else {
			sb.WriteString(" DO UPDATE SET ")
			sb.WriteString(strings.Join(updates, ", "))
		}
	}

	return sb.String(), args
}
