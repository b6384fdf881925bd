// Package sqlite provides persistence drivers that store data in an SQLite
// database.
//
// The drivers are intended for single-node deployments and development. They
// use the github.com/mattn/go-sqlite3 driver, which must be registered (by
// importing this package) before the database is opened with [Open].
package sqlite
