// Package dockerexport implements the Docker Exporter: given an existing
// container, produces a self-contained directory with a Dockerfile,
// docker-compose.yml, entrypoint.sh, a generated .env, optional self-signed
// TLS certs, and an initialization backup — everything needed to hand a
// teammate without SpinDB installed a working `docker compose up`. The whole
// write is one Transaction Manager operation so the output directory is
// atomically created or removed on failure.
package dockerexport

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spindb/spindb/internal/apperrors"
	"github.com/spindb/spindb/internal/container"
	"github.com/spindb/spindb/internal/engine"
	"github.com/spindb/spindb/internal/txn"
)

// Logger is the subset of logrus.FieldLogger every Transaction Manager
// consumer needs for rollback tracing.
type Logger interface {
	Debugf(format string, args ...interface{})
}

// Options configures Export.
type Options struct {
	OutputDir   string
	Port        int // 0 uses the container's own port
	IncludeData bool
	BackupPath  string // pre-existing backup to seed; computed fresh if empty and IncludeData is set
	SkipTLS     bool
}

// Result is what Export returns: the output directory, generated
// credentials, and every file path written.
type Result struct {
	OutputDir   string
	Credentials Credentials
	Files       []string
}

// Manager runs Docker export operations against containers tracked by the
// Container Manager's on-disk registry.
type Manager struct {
	Root    string
	Engines engine.Registry
	Log     Logger
}

func New(root string, registry engine.Registry, log Logger) *Manager {
	return &Manager{Root: root, Engines: registry, Log: log}
}

// Export writes a self-contained Docker export of name to opts.OutputDir.
func (m *Manager) Export(ctx context.Context, eng engine.ID, name string, opts Options) (*Result, error) {
	if engine.IsFileBased(eng) {
		return nil, apperrors.New(apperrors.CodeExportFailed, apperrors.SeverityError,
			"file-based engines have no server process to export to Docker")
	}
	cfg, err := container.LoadConfig(m.Root, eng, name)
	if err != nil {
		return nil, err
	}
	e, ok := m.Engines[eng]
	if !ok {
		return nil, apperrors.New(apperrors.CodeContainerNotFound, apperrors.SeverityError,
			"no engine registered for "+string(eng))
	}
	defaults := e.Defaults()
	image, ok := imageFor(eng, cfg.Version)
	if !ok {
		return nil, apperrors.New(apperrors.CodeExportFailed, apperrors.SeverityError,
			"no known Docker image for engine "+string(eng))
	}

	if _, err := os.Stat(opts.OutputDir); err == nil {
		entries, _ := os.ReadDir(opts.OutputDir)
		if len(entries) > 0 {
			return nil, apperrors.New(apperrors.CodeContainerAlreadyExists, apperrors.SeverityError,
				"output directory "+opts.OutputDir+" already exists and is not empty")
		}
	}

	port := opts.Port
	if port == 0 {
		port = cfg.Port
	}

	creds, err := generateCredentials(superuserFor(defaults))
	if err != nil {
		return nil, err
	}

	var result *Result
	err = txn.WithTransaction(m.logf, func(tx *txn.Transaction) error {
		if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
			return apperrors.Wrap(err)
		}
		if err := tx.AddRollback("remove export output directory", func() error {
			return os.RemoveAll(opts.OutputDir)
		}); err != nil {
			return err
		}

		var files []string
		write := func(relPath string, content []byte, mode os.FileMode) error {
			full := filepath.Join(opts.OutputDir, relPath)
			if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
				return apperrors.Wrap(err)
			}
			if err := os.WriteFile(full, content, mode); err != nil {
				return apperrors.Wrap(err)
			}
			files = append(files, relPath)
			return nil
		}

		tmplData := composeData{
			Name:       cfg.Name,
			Engine:     string(eng),
			Image:      image,
			Port:       port,
			Username:   creds.Username,
			DataSubdir: dockerDataPath(defaults),
			UsesTLS:    !opts.SkipTLS,
		}

		dockerfile, err := renderTemplate(dockerfileTemplate, tmplData)
		if err != nil {
			return err
		}
		if err := write("Dockerfile", dockerfile, 0o644); err != nil {
			return err
		}

		compose, err := renderTemplate(composeTemplate, tmplData)
		if err != nil {
			return err
		}
		if err := write("docker-compose.yml", compose, 0o644); err != nil {
			return err
		}

		entrypoint, err := renderTemplate(entrypointTemplate, tmplData)
		if err != nil {
			return err
		}
		if err := write("entrypoint.sh", entrypoint, 0o755); err != nil {
			return err
		}

		envBody, err := renderTemplate(envTemplate, struct {
			composeData
			Password     string
			HtpasswdHash string
		}{tmplData, creds.Password, creds.HtpasswdHash})
		if err != nil {
			return err
		}
		if err := write(".env", envBody, 0o600); err != nil {
			return err
		}

		if err := write(".dockerignore", []byte(dockerignoreBody), 0o644); err != nil {
			return err
		}

		if !opts.SkipTLS {
			if err := os.MkdirAll(filepath.Join(opts.OutputDir, "tls"), 0o755); err != nil {
				return apperrors.Wrap(err)
			}
			if _, _, err := generateSelfSignedCert(filepath.Join(opts.OutputDir, "tls"), cfg.Name); err != nil {
				return err
			}
			files = append(files, "tls/tls.crt", "tls/tls.key")
		}

		if opts.IncludeData {
			initDir := filepath.Join(opts.OutputDir, "init")
			if err := os.MkdirAll(initDir, 0o755); err != nil {
				return apperrors.Wrap(err)
			}
			backupPath := opts.BackupPath
			if backupPath == "" {
				backupPath = filepath.Join(initDir, cfg.Name+".dump")
				if _, err := e.Backup(ctx, cfg, backupPath, engine.BackupOptions{}); err != nil {
					return apperrors.New(apperrors.CodeExportFailed, apperrors.SeverityError,
						"failed to produce seed backup for export").WithCause(err)
				}
			} else {
				dst := filepath.Join(initDir, filepath.Base(backupPath))
				data, err := os.ReadFile(backupPath)
				if err != nil {
					return apperrors.Wrap(err)
				}
				if err := os.WriteFile(dst, data, 0o644); err != nil {
					return apperrors.Wrap(err)
				}
			}
			files = append(files, "init/"+filepath.Base(backupPath))
		}

		readme, err := renderTemplate(readmeTemplate, tmplData)
		if err != nil {
			return err
		}
		if err := write("README.md", readme, 0o644); err != nil {
			return err
		}

		result = &Result{OutputDir: opts.OutputDir, Credentials: creds, Files: files}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// superuserFor picks the username written into the exported .env: the
// engine's conventional superuser name, falling back to "spindb" for
// engines with no fixed superuser concept.
func superuserFor(d engine.Defaults) string {
	if d.Superuser != "" {
		return d.Superuser
	}
	return "spindb"
}

// dockerDataPath maps an engine's own data subdirectory name to the path
// convention its official Docker image expects data mounted at, which is
// rarely the same string SpinDB uses locally.
func dockerDataPath(d engine.Defaults) string {
	switch d.ID {
	case engine.PostgreSQL, engine.CockroachDB:
		return "/var/lib/postgresql/data"
	case engine.MySQL, engine.MariaDB:
		return "/var/lib/mysql"
	case engine.MongoDB, engine.FerretDB:
		return "/data/db"
	case engine.Redis, engine.Valkey:
		return "/data"
	case engine.ClickHouse:
		return "/var/lib/clickhouse"
	case engine.Qdrant:
		return "/qdrant/storage"
	case engine.Meilisearch:
		return "/meili_data"
	case engine.CouchDB:
		return "/opt/couchdb/data"
	default:
		return "/data"
	}
}

type composeData struct {
	Name       string
	Engine     string
	Image      string
	Port       int
	Username   string
	DataSubdir string
	UsesTLS    bool
}

func renderTemplate(body string, data interface{}) ([]byte, error) {
	tmpl, err := template.New("dockerexport").Parse(body)
	if err != nil {
		return nil, apperrors.Wrap(err)
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, apperrors.Wrap(err)
	}
	return []byte(buf.String()), nil
}

func (m *Manager) logf(format string, args ...interface{}) {
	if m.Log != nil {
		m.Log.Debugf(format, args...)
	}
}

var dockerfileTemplate = `FROM {{.Image}}

LABEL spindb.exported-container="{{.Name}}"
LABEL spindb.engine="{{.Engine}}"

COPY entrypoint.sh /spindb-entrypoint.sh
RUN chmod +x /spindb-entrypoint.sh

ENTRYPOINT ["/spindb-entrypoint.sh"]
`

var composeTemplate = `services:
  {{.Name}}:
    build: .
    image: spindb-export/{{.Name}}:latest
    env_file: .env
    ports:
      - "{{.Port}}:{{.Port}}"
    volumes:
      - {{.Name}}-data:{{.DataSubdir}}
      - ./init:/docker-entrypoint-initdb.d:ro
{{- if .UsesTLS}}
      - ./tls:/tls:ro
{{- end}}
    restart: unless-stopped

volumes:
  {{.Name}}-data:
`

var entrypointTemplate = `#!/bin/sh
set -e

# seed from the backup this directory was exported with, then hand off to
# the upstream image's own entrypoint/command
if [ -d /docker-entrypoint-initdb.d ] && [ "$(ls -A /docker-entrypoint-initdb.d 2>/dev/null)" ]; then
  echo "spindb-export: seed data present under /docker-entrypoint-initdb.d"
fi

exec docker-entrypoint.sh "$@"
`

var envTemplate = `SPINDB_EXPORT_USERNAME={{.Username}}
SPINDB_EXPORT_PASSWORD={{.Password}}
SPINDB_EXPORT_HTPASSWD_HASH={{.HtpasswdHash}}
{{.Engine}}_PORT={{.Port}}
`

var dockerignoreBody = `.env
tls/
*.dump
`

var readmeTemplate = `# {{.Name}} — exported from SpinDB

This directory is a self-contained Docker export of the "{{.Name}}" {{.Engine}}
container. It does not require SpinDB to run.

## Usage

` + "```" + `
docker compose up -d
` + "```" + `

The generated superuser credentials live in .env (kept out of the Docker
build context by the accompanying .dockerignore). {{if .UsesTLS}}A self-signed
certificate for local TLS termination is under tls/.{{end}}
`
