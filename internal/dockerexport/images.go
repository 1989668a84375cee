package dockerexport

import "github.com/spindb/spindb/internal/engine"

// dockerImage maps an engine id to the upstream Docker Hub (or vendor
// registry) image most operators already pull for that engine, the same
// image tag convention `docker-compose up` users expect rather than a
// SpinDB-specific image.
var dockerImage = map[engine.ID]string{
	engine.PostgreSQL:  "postgres",
	engine.MySQL:       "mysql",
	engine.MariaDB:     "mariadb",
	engine.MongoDB:     "mongo",
	engine.FerretDB:    "ghcr.io/ferretdb/ferretdb",
	engine.Redis:       "redis",
	engine.Valkey:      "valkey/valkey",
	engine.ClickHouse:  "clickhouse/clickhouse-server",
	engine.Qdrant:      "qdrant/qdrant",
	engine.Meilisearch: "getmeili/meilisearch",
	engine.CouchDB:     "couchdb",
	engine.CockroachDB: "cockroachdb/cockroach",
	engine.SurrealDB:   "surrealdb/surrealdb",
	engine.QuestDB:     "questdb/questdb",
	engine.TypeDB:      "typedb/typedb",
	engine.InfluxDB:    "influxdb",
	engine.Weaviate:    "semitechnologies/weaviate",
	engine.TigerBeetle: "ghcr.io/tigerbeetle/tigerbeetle",
}

// imageFor resolves the image:tag reference for an engine/version pair.
func imageFor(id engine.ID, version string) (string, bool) {
	img, ok := dockerImage[id]
	if !ok {
		return "", false
	}
	return img + ":" + version, true
}
