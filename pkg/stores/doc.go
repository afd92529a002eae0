// Package stores provides the persistent SQLite store backing the
// operation journal and the registry release cache. The schema is
// managed through embedded migrations.
package stores
