package storage

import "time"

// Config configures cursor storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default when empty)
//   - "memory": non-persistent in-process store
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
