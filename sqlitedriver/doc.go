// Package sqlitedriver provides a single place to import the SQLite driver.
// It ensures consistent driver registration across the codebase and selects
// the implementation at build time: modernc.org/sqlite (pure Go) by default,
// mattn/go-sqlite3 when built with -tags cgo_sqlite. Callers open databases
// with sql.Open(sqlitedriver.DriverName, path).
package sqlitedriver
