package engine

import "github.com/spindb/spindb/internal/portmgr"

// Defaults holds the static, per-engine metadata: default version/port,
// port range, latest major version, superuser, connection scheme, log/pid
// file names, data subdirectory, client-tool binary names, and a
// max-connection hint.
type Defaults struct {
	ID ID

	DefaultVersion string
	LatestMajor    string
	DefaultPort    int
	PortRange      portmgr.Range

	Superuser        string
	ConnectionScheme string

	LogFileName string
	PidFileName string
	DataSubdir  string
	// PidInDataDir is true when the server writes its own pidfile inside the
	// data directory (e.g. PostgreSQL's postmaster.pid); false when SpinDB's
	// own process manager owns the pidfile location under the container dir.
	PidInDataDir bool

	ServerBinaryName string
	ClientToolNames  []string

	MaxConnectionsHint int

	// ReadyTimeoutSeconds is the start readiness-probe deadline: 30s for
	// most engines, longer for JVM-backed or otherwise slow-starting ones.
	ReadyTimeoutSeconds int
	// GracefulStopSeconds is the grace window before escalating to a force
	// kill.
	GracefulStopSeconds int

	// SupportsMultipleDatabases is true for engines whose ContainerConfig
	// carries a databases[] slice rather than a single primary database.
	SupportsMultipleDatabases bool
}

// defaultsTable is the static registry of EngineDefaults, one row per
// supported engine. Port ranges are a generous 10-wide band above each
// engine's conventional default port so AllocatePort has room to work with
// before exhausting the range.
var defaultsTable = map[ID]Defaults{
	PostgreSQL: {
		ID: PostgreSQL, DefaultVersion: "18", LatestMajor: "18", DefaultPort: 5432,
		PortRange: portmgr.Range{Start: 5432, End: 5442}, Superuser: "postgres",
		ConnectionScheme: "postgresql", LogFileName: "postgresql.log", PidFileName: "postmaster.pid",
		DataSubdir: "data", PidInDataDir: true, ServerBinaryName: "postgres",
		ClientToolNames: []string{"psql", "pg_dump", "pg_restore", "pg_ctl", "createdb", "dropdb"},
		MaxConnectionsHint: 100, ReadyTimeoutSeconds: 30, GracefulStopSeconds: 5,
		SupportsMultipleDatabases: true,
	},
	MySQL: {
		ID: MySQL, DefaultVersion: "8.4", LatestMajor: "8", DefaultPort: 3306,
		PortRange: portmgr.Range{Start: 3306, End: 3316}, Superuser: "root",
		ConnectionScheme: "mysql", LogFileName: "mysql.log", PidFileName: "mysql.pid",
		DataSubdir: "data", PidInDataDir: false, ServerBinaryName: "mysqld",
		ClientToolNames: []string{"mysql", "mysqldump", "mysqladmin"},
		MaxConnectionsHint: 151, ReadyTimeoutSeconds: 30, GracefulStopSeconds: 5,
		SupportsMultipleDatabases: true,
	},
	MariaDB: {
		ID: MariaDB, DefaultVersion: "11.4", LatestMajor: "11", DefaultPort: 3307,
		PortRange: portmgr.Range{Start: 3307, End: 3317}, Superuser: "root",
		ConnectionScheme: "mysql", LogFileName: "mariadb.log", PidFileName: "mariadb.pid",
		DataSubdir: "data", PidInDataDir: false, ServerBinaryName: "mariadbd",
		ClientToolNames: []string{"mariadb", "mariadb-dump", "mariadb-admin"},
		MaxConnectionsHint: 151, ReadyTimeoutSeconds: 30, GracefulStopSeconds: 5,
		SupportsMultipleDatabases: true,
	},
	SQLite: {
		ID: SQLite, DefaultVersion: "3.46", LatestMajor: "3", DefaultPort: 0,
		ConnectionScheme: "sqlite", DataSubdir: "", ServerBinaryName: "",
		ClientToolNames: []string{"sqlite3"}, ReadyTimeoutSeconds: 5, GracefulStopSeconds: 0,
	},
	DuckDB: {
		ID: DuckDB, DefaultVersion: "1.1", LatestMajor: "1", DefaultPort: 0,
		ConnectionScheme: "duckdb", DataSubdir: "", ServerBinaryName: "",
		ClientToolNames: []string{"duckdb"}, ReadyTimeoutSeconds: 5, GracefulStopSeconds: 0,
	},
	MongoDB: {
		ID: MongoDB, DefaultVersion: "7.0", LatestMajor: "7", DefaultPort: 27017,
		PortRange: portmgr.Range{Start: 27017, End: 27027}, Superuser: "",
		ConnectionScheme: "mongodb", LogFileName: "mongod.log", PidFileName: "mongod.pid",
		DataSubdir: "data", PidInDataDir: false, ServerBinaryName: "mongod",
		ClientToolNames: []string{"mongosh", "mongodump", "mongorestore"},
		MaxConnectionsHint: 65536, ReadyTimeoutSeconds: 30, GracefulStopSeconds: 5,
		SupportsMultipleDatabases: true,
	},
	FerretDB: {
		ID: FerretDB, DefaultVersion: "1.24", LatestMajor: "1", DefaultPort: 27018,
		PortRange: portmgr.Range{Start: 27018, End: 27028}, Superuser: "",
		ConnectionScheme: "mongodb", LogFileName: "ferretdb.log", PidFileName: "ferretdb.pid",
		DataSubdir: "data", PidInDataDir: false, ServerBinaryName: "ferretdb",
		ClientToolNames: []string{"mongosh"}, ReadyTimeoutSeconds: 30, GracefulStopSeconds: 5,
		SupportsMultipleDatabases: true,
	},
	Redis: {
		ID: Redis, DefaultVersion: "7.4", LatestMajor: "7", DefaultPort: 6379,
		PortRange: portmgr.Range{Start: 6379, End: 6389}, Superuser: "",
		ConnectionScheme: "redis", LogFileName: "redis.log", PidFileName: "redis.pid",
		DataSubdir: "data", PidInDataDir: false, ServerBinaryName: "redis-server",
		ClientToolNames: []string{"redis-cli"}, ReadyTimeoutSeconds: 15, GracefulStopSeconds: 5,
	},
	Valkey: {
		ID: Valkey, DefaultVersion: "8.0", LatestMajor: "8", DefaultPort: 6380,
		PortRange: portmgr.Range{Start: 6380, End: 6390}, Superuser: "",
		ConnectionScheme: "redis", LogFileName: "valkey.log", PidFileName: "valkey.pid",
		DataSubdir: "data", PidInDataDir: false, ServerBinaryName: "valkey-server",
		ClientToolNames: []string{"valkey-cli"}, ReadyTimeoutSeconds: 15, GracefulStopSeconds: 5,
	},
	ClickHouse: {
		ID: ClickHouse, DefaultVersion: "24.8", LatestMajor: "24", DefaultPort: 9000,
		PortRange: portmgr.Range{Start: 9000, End: 9010}, Superuser: "default",
		ConnectionScheme: "clickhouse", LogFileName: "clickhouse.log", PidFileName: "clickhouse.pid",
		DataSubdir: "data", PidInDataDir: false, ServerBinaryName: "clickhouse",
		ClientToolNames: []string{"clickhouse-client"}, ReadyTimeoutSeconds: 30, GracefulStopSeconds: 5,
		SupportsMultipleDatabases: true,
	},
	Qdrant: {
		ID: Qdrant, DefaultVersion: "1.11", LatestMajor: "1", DefaultPort: 6333,
		PortRange: portmgr.Range{Start: 6333, End: 6343}, Superuser: "",
		ConnectionScheme: "http", LogFileName: "qdrant.log", PidFileName: "qdrant.pid",
		DataSubdir: "storage", PidInDataDir: false, ServerBinaryName: "qdrant",
		ClientToolNames: []string{}, ReadyTimeoutSeconds: 30, GracefulStopSeconds: 5,
	},
	Meilisearch: {
		ID: Meilisearch, DefaultVersion: "1.10", LatestMajor: "1", DefaultPort: 7700,
		PortRange: portmgr.Range{Start: 7700, End: 7710}, Superuser: "",
		ConnectionScheme: "http", LogFileName: "meilisearch.log", PidFileName: "meilisearch.pid",
		DataSubdir: "data.ms", PidInDataDir: false, ServerBinaryName: "meilisearch",
		ClientToolNames: []string{}, ReadyTimeoutSeconds: 30, GracefulStopSeconds: 5,
	},
	CouchDB: {
		ID: CouchDB, DefaultVersion: "3.3", LatestMajor: "3", DefaultPort: 5984,
		PortRange: portmgr.Range{Start: 5984, End: 5994}, Superuser: "admin",
		ConnectionScheme: "http", LogFileName: "couchdb.log", PidFileName: "couchdb.pid",
		DataSubdir: "data", PidInDataDir: false, ServerBinaryName: "couchdb",
		ClientToolNames: []string{}, ReadyTimeoutSeconds: 30, GracefulStopSeconds: 5,
		SupportsMultipleDatabases: true,
	},
	CockroachDB: {
		ID: CockroachDB, DefaultVersion: "24.2", LatestMajor: "24", DefaultPort: 26257,
		PortRange: portmgr.Range{Start: 26257, End: 26267}, Superuser: "root",
		ConnectionScheme: "postgresql", LogFileName: "cockroach.log", PidFileName: "cockroach.pid",
		DataSubdir: "data", PidInDataDir: false, ServerBinaryName: "cockroach",
		ClientToolNames: []string{"cockroach"}, ReadyTimeoutSeconds: 45, GracefulStopSeconds: 5,
		SupportsMultipleDatabases: true,
	},
	SurrealDB: {
		ID: SurrealDB, DefaultVersion: "2.0", LatestMajor: "2", DefaultPort: 8000,
		PortRange: portmgr.Range{Start: 8000, End: 8010}, Superuser: "root",
		ConnectionScheme: "ws", LogFileName: "surrealdb.log", PidFileName: "surrealdb.pid",
		DataSubdir: "data", PidInDataDir: false, ServerBinaryName: "surreal",
		ClientToolNames: []string{"surreal"}, ReadyTimeoutSeconds: 20, GracefulStopSeconds: 5,
		SupportsMultipleDatabases: true,
	},
	QuestDB: {
		ID: QuestDB, DefaultVersion: "8.1", LatestMajor: "8", DefaultPort: 8812,
		PortRange: portmgr.Range{Start: 8812, End: 8822}, Superuser: "admin",
		ConnectionScheme: "postgresql", LogFileName: "questdb.log", PidFileName: "questdb.pid",
		DataSubdir: "db", PidInDataDir: false, ServerBinaryName: "questdb",
		ClientToolNames: []string{}, ReadyTimeoutSeconds: 60, GracefulStopSeconds: 5,
	},
	TypeDB: {
		ID: TypeDB, DefaultVersion: "2.28", LatestMajor: "2", DefaultPort: 1729,
		PortRange: portmgr.Range{Start: 1729, End: 1739}, Superuser: "",
		ConnectionScheme: "typedb", LogFileName: "typedb.log", PidFileName: "typedb.pid",
		DataSubdir: "server/data", PidInDataDir: false, ServerBinaryName: "typedb",
		ClientToolNames: []string{"typedb"}, ReadyTimeoutSeconds: 90, GracefulStopSeconds: 5,
	},
	InfluxDB: {
		ID: InfluxDB, DefaultVersion: "2.7", LatestMajor: "2", DefaultPort: 8086,
		PortRange: portmgr.Range{Start: 8086, End: 8096}, Superuser: "",
		ConnectionScheme: "http", LogFileName: "influxd.log", PidFileName: "influxd.pid",
		DataSubdir: "data", PidInDataDir: false, ServerBinaryName: "influxd",
		ClientToolNames: []string{"influx"}, ReadyTimeoutSeconds: 30, GracefulStopSeconds: 5,
	},
	Weaviate: {
		ID: Weaviate, DefaultVersion: "1.27", LatestMajor: "1", DefaultPort: 8080,
		PortRange: portmgr.Range{Start: 8080, End: 8090}, Superuser: "",
		ConnectionScheme: "http", LogFileName: "weaviate.log", PidFileName: "weaviate.pid",
		DataSubdir: "data", PidInDataDir: false, ServerBinaryName: "weaviate",
		ClientToolNames: []string{}, ReadyTimeoutSeconds: 30, GracefulStopSeconds: 5,
	},
	TigerBeetle: {
		ID: TigerBeetle, DefaultVersion: "0.16", LatestMajor: "0", DefaultPort: 3001,
		PortRange: portmgr.Range{Start: 3001, End: 3011}, Superuser: "",
		ConnectionScheme: "tigerbeetle", LogFileName: "tigerbeetle.log", PidFileName: "tigerbeetle.pid",
		DataSubdir: "data", PidInDataDir: false, ServerBinaryName: "tigerbeetle",
		ClientToolNames: []string{}, ReadyTimeoutSeconds: 20, GracefulStopSeconds: 5,
	},
}

// DefaultsFor returns the EngineDefaults row for id and whether it exists.
func DefaultsFor(id ID) (Defaults, bool) {
	d, ok := defaultsTable[id]
	return d, ok
}
