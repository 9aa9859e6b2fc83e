// Package repositories implements SQLite persistence for the tracker.
//
// Key Implementations:
//   - [RunRepository] : run history, implementing models.Repository[*models.Run]
//   - [CursorRepository] : named tracker cursors, an alternative to the JSON cursor file
//
// Sequence numbers provide stable, human-readable ordering (run #42) independent of UUIDs and
// timestamps. [NextSequence] allocates them inside the inserting transaction.
package repositories
