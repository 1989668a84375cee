// Package engine defines the abstract Engine contract every database
// backend implements and the static per-engine metadata table. A registry
// map (registry.go) replaces runtime type-switch dispatch with a plain
// engine-id -> implementation lookup.
package engine

// ID is one value from the closed set of supported database engines.
type ID string

const (
	PostgreSQL  ID = "postgresql"
	MySQL       ID = "mysql"
	MariaDB     ID = "mariadb"
	SQLite      ID = "sqlite"
	DuckDB      ID = "duckdb"
	MongoDB     ID = "mongodb"
	FerretDB    ID = "ferretdb"
	Redis       ID = "redis"
	Valkey      ID = "valkey"
	ClickHouse  ID = "clickhouse"
	Qdrant      ID = "qdrant"
	Meilisearch ID = "meilisearch"
	CouchDB     ID = "couchdb"
	CockroachDB ID = "cockroachdb"
	SurrealDB   ID = "surrealdb"
	QuestDB     ID = "questdb"
	TypeDB      ID = "typedb"
	InfluxDB    ID = "influxdb"
	Weaviate    ID = "weaviate"
	TigerBeetle ID = "tigerbeetle"
)

// All lists every supported engine identifier.
var All = []ID{
	PostgreSQL, MySQL, MariaDB, SQLite, DuckDB, MongoDB, FerretDB, Redis,
	Valkey, ClickHouse, Qdrant, Meilisearch, CouchDB, CockroachDB, SurrealDB,
	QuestDB, TypeDB, InfluxDB, Weaviate, TigerBeetle,
}

// IsFileBased partitions the closed engine set into file-based (the file
// *is* the data, no port) versus server-based.
func IsFileBased(id ID) bool {
	return id == SQLite || id == DuckDB
}

// Status is one of the closed container status values.
type Status string

const (
	StatusRunning   Status = "running"
	StatusStopped   Status = "stopped"
	StatusAvailable Status = "available" // file-based, file exists
	StatusMissing   Status = "missing"   // file-based, file gone
)
