package engine

import (
	"context"
	"time"
)

// ContainerConfig is the persisted, per-container configuration. It lives in
// the engine package (rather than a higher-level container package) because
// every Engine method takes one directly, and the container manager that
// owns persistence sits above this layer, not below it.
type ContainerConfig struct {
	Name       string    `json:"name"`
	Engine     ID        `json:"engine"`
	Version    string    `json:"version"`
	Port       int       `json:"port"`
	Database   string    `json:"database"`
	Databases  []string  `json:"databases,omitempty"`
	DataPath   string    `json:"dataPath"`
	BinaryPath string    `json:"binaryPath"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`

	// BackendVersion is only populated for FerretDB, which layers on a
	// PostgreSQL backend.
	BackendVersion string `json:"backendVersion,omitempty"`

	// Extras carries engine-specific fields that don't warrant a dedicated
	// column.
	Extras map[string]string `json:"extras,omitempty"`
}

// StartResult is returned by a successful Start.
type StartResult struct {
	Port             int
	ConnectionString string
}

// BackupOptions configures Backup/DumpFromConnectionString.
type BackupOptions struct {
	Format   string // engine-chosen default when empty, e.g. "custom", "dump", "rdb"
	Database string // empty means the container's primary database
}

// BackupResult describes what Backup produced.
type BackupResult struct {
	Path   string
	Size   int64
	Format string
}

// RestoreOptions configures Restore.
type RestoreOptions struct {
	Database string
	Clean    bool // drop/recreate conflicting objects before loading, where supported
}

// ScriptInput is the union of ways to hand runScript a script: a path to a
// file, or inline SQL/command text. Exactly one should be set.
type ScriptInput struct {
	File string
	SQL  string
}

// QueryOptions configures ExecuteQuery.
type QueryOptions struct {
	Database string
	Timeout  time.Duration
}

// QueryResult is a generic row-set, shaped to be representable across every
// engine family (relational rows, document result arrays, key-value single
// values).
type QueryResult struct {
	Columns  []string
	Rows     [][]interface{}
	RowCount int
	Message  string
}

// Engine is the contract every database backend implements. Start is
// idempotent: calling it against a running container returns its port and
// connection string without error. CreateDatabase/DropDatabase are not
// uniformly idempotent; PostgreSQL's CreateDatabase, for one, fails when the
// database already exists.
type Engine interface {
	ID() ID
	Defaults() Defaults

	Start(ctx context.Context, cfg *ContainerConfig) (StartResult, error)
	Stop(ctx context.Context, cfg *ContainerConfig) error
	Status(ctx context.Context, cfg *ContainerConfig) (Status, error)

	Backup(ctx context.Context, cfg *ContainerConfig, outPath string, opts BackupOptions) (BackupResult, error)
	Restore(ctx context.Context, cfg *ContainerConfig, inPath string, opts RestoreOptions) error
	DumpFromConnectionString(ctx context.Context, connectionURL, outPath string) (BackupResult, error)

	RunScript(ctx context.Context, cfg *ContainerConfig, input ScriptInput) error
	ExecuteQuery(ctx context.Context, cfg *ContainerConfig, query string, opts QueryOptions) (*QueryResult, error)
	Connect(ctx context.Context, cfg *ContainerConfig, database string) error

	CreateDatabase(ctx context.Context, cfg *ContainerConfig, name string) error
	DropDatabase(ctx context.Context, cfg *ContainerConfig, name string) error
	GetDatabaseSize(ctx context.Context, cfg *ContainerConfig) (*int64, error)

	GetConnectionString(cfg *ContainerConfig, database string) string

	// InitDataDir creates the data directory/file and writes engine config.
	// The caller (the container manager's create flow) is responsible for
	// registering the matching rollback step before calling this.
	InitDataDir(ctx context.Context, cfg *ContainerConfig, opts InitOptions) error
}

// InitOptions configures InitDataDir. Engine-specific knobs travel in Extra
// rather than as dedicated fields; each engine implementation documents
// which Extra keys it reads.
type InitOptions struct {
	Extra map[string]string
}
