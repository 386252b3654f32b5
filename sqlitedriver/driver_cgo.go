//go:build cgo_sqlite

package sqlitedriver

import (
	// Import mattn/go-sqlite3 to register the cgo SQLite driver.
	// The driver registers itself as "sqlite3" in its init() function.
	_ "github.com/mattn/go-sqlite3"
)

// DriverName is the database/sql driver name registered by the selected
// SQLite implementation. Build with -tags cgo_sqlite to use the cgo driver
// where its performance matters more than a static binary.
const DriverName = "sqlite3"
