//go:build !cgo_sqlite

package sqlitedriver

import (
	// Import modernc.org/sqlite to register the pure-Go SQLite driver.
	// The driver registers itself as "sqlite" in its init() function.
	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver name registered by the selected
// SQLite implementation. The pure-Go driver is the default so the service
// builds without a C toolchain (container images use CGO_ENABLED=0).
const DriverName = "sqlite"
