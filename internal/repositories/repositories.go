// package repositories provides persistence layer implementations for crate's models.
package repositories

import (
	"database/sql"
	"fmt"
)

// NextSequence returns the next sequence number for table within tx.
//
// Sequence numbers are NOT exposed as identifiers; they order history listings.
func NextSequence(tx *sql.Tx, table string) (int, error) {
	var sequence int
	err := tx.QueryRow(fmt.Sprintf("SELECT COALESCE(MAX(sequence), 0) + 1 FROM %s", table)).Scan(&sequence)
	if err != nil {
		return 0, fmt.Errorf("failed to get sequence value: %w", err)
	}
	return sequence, nil
}

// scanner is implemented by [sql.Row] and [sql.Rows].
type scanner interface {
	Scan(dest ...any) error
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
