// Package tracker finds tracks added to source playlists since the previous run and copies them
// into a target playlist.
//
// # Run
//
// [Engine.Run] performs one pass:
//
//  1. load the cursor from a [CursorStore], defaulting to now minus [DefaultLookbackDays]
//  2. read every source playlist through [services.Service], keeping items added strictly after the cursor ([FilterSince])
//  3. append an [Entry] to the [SongLog]
//  4. use the configured target playlist or create one named from a template ([RenderName])
//  5. add the URIs in batches of at most [services.MaxItemsPerRequest] ([AddInBatches])
//  6. advance the cursor to the run's start time
//
// A failing playlist does not stop the run, and a failing batch does not roll back the others.
// Dry runs stop after step 2.
//
// # Progress Reporting
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
//
// # Cursor Stores
//
//   - [FileCursor] : {"last_run": "<RFC3339Nano>"} JSON file
//   - [MemoryCursor] : in-memory, for tests and dry runs
//   - repositories.CursorRepository : sqlite row per cursor name
package tracker
