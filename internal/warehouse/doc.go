// Package warehouse is the relational sink for APOD observations.
//
// One table holds one row per date. Two dialects are supported: SQLite
// (modernc.org/sqlite, the local default) and PostgreSQL (lib/pq). Inserts are
// keyed by date through a unique index, so replaying a load never duplicates
// rows. The table name is configurable and validated as a plain identifier
// before it is ever interpolated into SQL.
package warehouse
