// Package models defines persistent entities and the repository contract for crate.
//
// Playlist and track DTOs live in the services package, next to the API client that produces them.
// This package holds what crate stores itself:
//   - [Run] : one execution of the playlist tracker, kept as run history
//
// All persistent entities implement the [Model] interface providing ID, timestamps and validation.
// The [Repository] interface defines standard CRUD operations for database access.
package models
