// Package sqlstore implements the relational backend on modernc.org/sqlite.
//
// Documents live in one table with an index on age:
//
//	docs(id TEXT PRIMARY KEY, age INTEGER, longtext TEXT, nes TEXT, list TEXT)
//
// The nested object and the list are stored as JSON text. Every query is a single
// SQL statement, substring matching uses instr(). A write batch is one transaction
// with a prepared insert, a duplicate id violates the primary key and rolls the
// whole batch back.
//
// Without a directory the database is ":memory:" on a single connection, otherwise
// a file in WAL mode.
package sqlstore
