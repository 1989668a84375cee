package engine

// Registry maps every supported engine identifier to its Engine
// implementation, replacing a runtime type switch with a plain lookup.
type Registry map[ID]Engine

// NewRegistry builds the full Registry. root is the SpinDB root directory
// every implementation resolves container paths against.
func NewRegistry(root string) Registry {
	reg := Registry{
		PostgreSQL:  NewPostgreSQL(root),
		MySQL:       NewMySQL(root),
		MariaDB:     NewMariaDB(root),
		SQLite:      NewSQLite(root),
		DuckDB:      NewDuckDB(root),
		MongoDB:     NewMongoDB(root),
		FerretDB:    NewFerretDB(root),
		Redis:       NewRedis(root),
		Valkey:      NewValkey(root),
		ClickHouse:  NewClickHouse(root),
		Qdrant:      NewQdrant(root),
		Meilisearch: NewMeilisearch(root),
	}
	for _, id := range []ID{CouchDB, CockroachDB, SurrealDB, QuestDB, TypeDB, InfluxDB, Weaviate, TigerBeetle} {
		reg[id] = NewGenericServer(root, id)
	}
	return reg
}

// Get looks up the Engine implementation for id, reporting false if id is
// not in the closed supported set.
func (r Registry) Get(id ID) (Engine, bool) {
	e, ok := r[id]
	return e, ok
}
