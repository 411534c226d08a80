package storage

// Package storage persists per-source cursors (the high-water mark of the
// last processed post id).
//
// It currently supports:
//   - "sqlite": SQLite database file, survives restarts (default)
//   - "memory": process-local map, for tests and throwaway runs
