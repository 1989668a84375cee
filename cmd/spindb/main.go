package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/integrii/flaggy"

	"github.com/spindb/spindb/internal/app"
	"github.com/spindb/spindb/internal/apperrors"
	"github.com/spindb/spindb/internal/container"
	"github.com/spindb/spindb/internal/dockerexport"
	"github.com/spindb/spindb/internal/doctor"
	"github.com/spindb/spindb/internal/engine"
	"github.com/spindb/spindb/internal/present"
	"github.com/spindb/spindb/internal/pull"
)

const defaultVersion = "unversioned"

var (
	commit    string
	version   = defaultVersion
	buildDate string
)

func main() {
	resolveBuildInfo()
	os.Exit(run())
}

// run builds the flaggy command tree, parses argv, dispatches the matched
// subcommand, and returns the process exit code: 0 on success, 1 on any
// error (matching the prior implementation's log.Fatal-on-error shape, but as a return
// value so main can keep os.Exit in one place).
func run() int {
	var jsonOutput, debugFlag bool

	flaggy.SetName("spindb")
	flaggy.SetDescription("Run local database engine instances without Docker")
	flaggy.DefaultParser.AdditionalHelpPrepend = "https://github.com/spindb/spindb"
	flaggy.Bool(&jsonOutput, "", "json", "emit machine-readable JSON instead of human output")
	flaggy.Bool(&debugFlag, "d", "debug", "enable debug logging")
	flaggy.SetVersion(version)

	cmds := registerSubcommands()
	flaggy.Parse()

	printer := present.New(printerMode(jsonOutput), os.Stdout, os.Stderr)

	a, err := app.New(version, commit, buildDate, debugFlag)
	if err != nil {
		printer.Error(err)
		return 1
	}
	defer a.Close()

	ctx := context.Background()
	for _, c := range cmds {
		if c.sub.Used {
			if err := c.run(ctx, a, printer); err != nil {
				printer.Error(err)
				return 1
			}
			return 0
		}
	}

	flaggy.ShowHelp("")
	return 1
}

func printerMode(jsonOutput bool) present.Mode {
	if jsonOutput {
		return present.ModeJSON
	}
	return present.ModeHuman
}

type subcommand struct {
	sub *flaggy.Subcommand
	run func(ctx context.Context, a *app.App, p *present.Printer) error
}

// registerSubcommands builds every spindb subcommand and attaches it to the
// root flaggy parser, returning the handles needed to detect which one
// matched after Parse and to run its handler.
func registerSubcommands() []*subcommand {
	var cmds []*subcommand

	add := func(sc *flaggy.Subcommand, handler func(ctx context.Context, a *app.App, p *present.Printer) error) *subcommand {
		flaggy.AttachSubcommand(sc, 1)
		entry := &subcommand{sub: sc, run: handler}
		cmds = append(cmds, entry)
		return entry
	}

	var (
		engineName, containerName, engineVersion, path, database string
		port                                                     int
		autoStart                                                bool
	)
	create := flaggy.NewSubcommand("create")
	create.Description = "Create a new database container"
	create.AddPositionalValue(&engineName, "engine", 1, true, "engine id, e.g. postgresql")
	create.AddPositionalValue(&containerName, "name", 2, true, "container name")
	create.String(&engineVersion, "v", "version", "engine version (defaults to the engine's default)")
	create.String(&path, "p", "path", "data file path (required for sqlite/duckdb)")
	create.String(&database, "", "database", "initial database name")
	create.Int(&port, "", "port", "preferred port (0 picks one automatically)")
	create.Bool(&autoStart, "", "start", "start the container immediately after creating it")
	add(create, func(ctx context.Context, a *app.App, p *present.Printer) error {
		cfg, err := a.Containers.Create(ctx, container.CreateSpec{
			Name: containerName, Engine: engine.ID(engineName), Version: engineVersion,
			Path: path, Database: database, Port: port, AutoStart: autoStart,
		})
		if err != nil {
			return err
		}
		p.JSON(cfg, func() { p.Success("created %s container %q", cfg.Engine, cfg.Name) })
		return nil
	})

	var startEngine, startName string
	start := flaggy.NewSubcommand("start")
	start.Description = "Start a stopped container"
	start.AddPositionalValue(&startEngine, "engine", 1, true, "engine id")
	start.AddPositionalValue(&startName, "name", 2, true, "container name")
	add(start, func(ctx context.Context, a *app.App, p *present.Printer) error {
		cfg, err := a.Containers.Start(ctx, engine.ID(startEngine), startName)
		if err != nil {
			return err
		}
		p.JSON(cfg, func() { p.Success("started %s/%s on port %d", cfg.Engine, cfg.Name, cfg.Port) })
		return nil
	})

	var stopEngine, stopName string
	stop := flaggy.NewSubcommand("stop")
	stop.Description = "Stop a running container"
	stop.AddPositionalValue(&stopEngine, "engine", 1, true, "engine id")
	stop.AddPositionalValue(&stopName, "name", 2, true, "container name")
	add(stop, func(ctx context.Context, a *app.App, p *present.Printer) error {
		cfg, err := a.Containers.Stop(ctx, engine.ID(stopEngine), stopName)
		if err != nil {
			return err
		}
		p.JSON(cfg, func() { p.Success("stopped %s/%s", cfg.Engine, cfg.Name) })
		return nil
	})

	list := flaggy.NewSubcommand("list")
	list.Description = "List every container"
	add(list, func(ctx context.Context, a *app.App, p *present.Printer) error {
		cfgs, err := a.Containers.List(ctx)
		if err != nil {
			return err
		}
		p.JSON(cfgs, func() {
			for _, cfg := range cfgs {
				fmt.Fprintf(os.Stdout, "%-12s %-20s %-8s %-8s %d\n", cfg.Engine, cfg.Name, cfg.Version, cfg.Status, cfg.Port)
			}
		})
		return nil
	})

	var delEngine, delName string
	var delForce bool
	del := flaggy.NewSubcommand("delete")
	del.Description = "Delete a container"
	del.AddPositionalValue(&delEngine, "engine", 1, true, "engine id")
	del.AddPositionalValue(&delName, "name", 2, true, "container name")
	del.Bool(&delForce, "f", "force", "stop the container first if still running")
	add(del, func(ctx context.Context, a *app.App, p *present.Printer) error {
		if err := a.Containers.Delete(ctx, engine.ID(delEngine), delName, container.DeleteOptions{Force: delForce}); err != nil {
			return err
		}
		p.Success("deleted %s/%s", delEngine, delName)
		return nil
	})

	var cloneEngine, cloneSrc, cloneDst, cloneDstPath string
	clone := flaggy.NewSubcommand("clone")
	clone.Description = "Clone a container into a new one"
	clone.AddPositionalValue(&cloneEngine, "engine", 1, true, "engine id")
	clone.AddPositionalValue(&cloneSrc, "source", 2, true, "source container name")
	clone.AddPositionalValue(&cloneDst, "dest", 3, true, "new container name")
	clone.String(&cloneDstPath, "p", "path", "destination data file path (required for sqlite/duckdb)")
	add(clone, func(ctx context.Context, a *app.App, p *present.Printer) error {
		cfg, err := a.Containers.Clone(ctx, engine.ID(cloneEngine), cloneSrc, cloneDst, cloneDstPath)
		if err != nil {
			return err
		}
		p.JSON(cfg, func() { p.Success("cloned %s/%s into %s", cloneEngine, cloneSrc, cloneDst) })
		return nil
	})

	var renEngine, renOld, renNew string
	rename := flaggy.NewSubcommand("rename")
	rename.Description = "Rename a container"
	rename.AddPositionalValue(&renEngine, "engine", 1, true, "engine id")
	rename.AddPositionalValue(&renOld, "old-name", 2, true, "current container name")
	rename.AddPositionalValue(&renNew, "new-name", 3, true, "new container name")
	add(rename, func(ctx context.Context, a *app.App, p *present.Printer) error {
		cfg, err := a.Containers.Rename(ctx, engine.ID(renEngine), renOld, renNew)
		if err != nil {
			return err
		}
		p.JSON(cfg, func() { p.Success("renamed %s/%s to %s", renEngine, renOld, renNew) })
		return nil
	})

	var urlEngine, urlName, urlDatabase string
	urlCmd := flaggy.NewSubcommand("url")
	urlCmd.Description = "Print a container's connection string"
	urlCmd.AddPositionalValue(&urlEngine, "engine", 1, true, "engine id")
	urlCmd.AddPositionalValue(&urlName, "name", 2, true, "container name")
	urlCmd.String(&urlDatabase, "", "database", "database name (defaults to the container's primary database)")
	add(urlCmd, func(ctx context.Context, a *app.App, p *present.Printer) error {
		cfg, e, err := loadWithEngine(a, urlEngine, urlName)
		if err != nil {
			return err
		}
		conn := e.GetConnectionString(cfg, urlDatabase)
		p.JSON(map[string]string{"url": conn}, func() { fmt.Fprintln(os.Stdout, conn) })
		return nil
	})

	var backupEngine, backupName, backupOut, backupFormat, backupDatabase string
	backup := flaggy.NewSubcommand("backup")
	backup.Description = "Back up a container's data"
	backup.AddPositionalValue(&backupEngine, "engine", 1, true, "engine id")
	backup.AddPositionalValue(&backupName, "name", 2, true, "container name")
	backup.AddPositionalValue(&backupOut, "out", 3, true, "output file path")
	backup.String(&backupFormat, "", "format", "backup format override")
	backup.String(&backupDatabase, "", "database", "database to back up (defaults to the container's primary database)")
	add(backup, func(ctx context.Context, a *app.App, p *present.Printer) error {
		cfg, e, err := loadWithEngine(a, backupEngine, backupName)
		if err != nil {
			return err
		}
		res, err := e.Backup(ctx, cfg, backupOut, engine.BackupOptions{Format: backupFormat, Database: backupDatabase})
		if err != nil {
			return err
		}
		p.JSON(res, func() { p.Success("backed up %s/%s to %s (%s)", backupEngine, backupName, res.Path, present.Size(res.Size)) })
		return nil
	})

	var restoreEngine, restoreName, restoreIn, restoreDatabase string
	var restoreClean bool
	restore := flaggy.NewSubcommand("restore")
	restore.Description = "Restore a backup into a container"
	restore.AddPositionalValue(&restoreEngine, "engine", 1, true, "engine id")
	restore.AddPositionalValue(&restoreName, "name", 2, true, "container name")
	restore.AddPositionalValue(&restoreIn, "in", 3, true, "backup file path")
	restore.String(&restoreDatabase, "", "database", "database to restore into")
	restore.Bool(&restoreClean, "", "clean", "drop conflicting objects before loading, where supported")
	add(restore, func(ctx context.Context, a *app.App, p *present.Printer) error {
		cfg, e, err := loadWithEngine(a, restoreEngine, restoreName)
		if err != nil {
			return err
		}
		if err := e.Restore(ctx, cfg, restoreIn, engine.RestoreOptions{Database: restoreDatabase, Clean: restoreClean}); err != nil {
			return err
		}
		p.Success("restored %s into %s/%s", restoreIn, restoreEngine, restoreName)
		return nil
	})

	var runEngine, runName, runFile, runSQL string
	runCmd := flaggy.NewSubcommand("run")
	runCmd.Description = "Run a script or inline statement against a container"
	runCmd.AddPositionalValue(&runEngine, "engine", 1, true, "engine id")
	runCmd.AddPositionalValue(&runName, "name", 2, true, "container name")
	runCmd.String(&runFile, "f", "file", "script file to run")
	runCmd.String(&runSQL, "e", "command", "inline statement to run")
	add(runCmd, func(ctx context.Context, a *app.App, p *present.Printer) error {
		cfg, e, err := loadWithEngine(a, runEngine, runName)
		if err != nil {
			return err
		}
		if err := e.RunScript(ctx, cfg, engine.ScriptInput{File: runFile, SQL: runSQL}); err != nil {
			return err
		}
		p.Success("ran script against %s/%s", runEngine, runName)
		return nil
	})

	var infoEngine, infoName string
	info := flaggy.NewSubcommand("info")
	info.Description = "Show a container's configuration and status"
	info.AddPositionalValue(&infoEngine, "engine", 1, true, "engine id")
	info.AddPositionalValue(&infoName, "name", 2, true, "container name")
	add(info, func(ctx context.Context, a *app.App, p *present.Printer) error {
		cfg, _, err := loadWithEngine(a, infoEngine, infoName)
		if err != nil {
			return err
		}
		p.JSON(cfg, func() {
			fmt.Fprintf(os.Stdout, "name:     %s\nengine:   %s\nversion:  %s\nstatus:   %s\nport:     %d\ndataPath: %s\n",
				cfg.Name, cfg.Engine, cfg.Version, cfg.Status, cfg.Port, cfg.DataPath)
		})
		return nil
	})

	pullCmd := flaggy.NewSubcommand("pull")
	pullCmd.Description = "Pull a remote database into a local container"
	var pullEngine, pullName, pullTarget, pullFrom, pullMode, pullScript, pullBackupSuffix string
	var pullForce, pullDeleteBackup bool
	pullCmd.AddPositionalValue(&pullEngine, "engine", 1, true, "engine id")
	pullCmd.AddPositionalValue(&pullName, "name", 2, true, "container name")
	pullCmd.AddPositionalValue(&pullTarget, "database", 3, true, "target database name")
	pullCmd.String(&pullFrom, "", "from", "remote connection string to pull from")
	pullCmd.String(&pullMode, "", "mode", "replace or clone (default replace)")
	pullCmd.Bool(&pullForce, "f", "force", "overwrite an existing target in clone mode")
	pullCmd.Bool(&pullDeleteBackup, "", "delete-backup", "delete the pre-replace backup database on success")
	pullCmd.String(&pullBackupSuffix, "", "backup-suffix", "suffix used to name the backup database")
	pullCmd.String(&pullScript, "", "post-script", "command to run after a successful pull")
	add(pullCmd, func(ctx context.Context, a *app.App, p *present.Printer) error {
		mode := pull.ModeReplace
		if pullMode != "" {
			mode = pull.Mode(pullMode)
		}
		res, err := a.Pull.Pull(ctx, pull.Spec{
			Engine: engine.ID(pullEngine), Container: pullName, TargetDatabase: pullTarget,
			FromURL: pullFrom, Mode: mode, Force: pullForce, DeleteBackup: pullDeleteBackup,
			BackupSuffix: pullBackupSuffix, PostScript: pullScript,
		})
		if err != nil {
			return err
		}
		p.JSON(res, func() { p.Success("pulled into %s/%s", pullEngine, pullTarget) })
		return nil
	})

	exportCmd := flaggy.NewSubcommand("export")
	exportCmd.Description = "Export a container as a standalone Docker project"
	dockerSub := flaggy.NewSubcommand("docker")
	dockerSub.Description = "Write a Dockerfile/compose project for a container"
	var expEngine, expName, expOut string
	var expIncludeData, expSkipTLS bool
	var expPort int
	dockerSub.AddPositionalValue(&expEngine, "engine", 1, true, "engine id")
	dockerSub.AddPositionalValue(&expName, "name", 2, true, "container name")
	dockerSub.AddPositionalValue(&expOut, "out-dir", 3, true, "output directory")
	dockerSub.Bool(&expIncludeData, "", "include-data", "seed the export with a fresh backup")
	dockerSub.Bool(&expSkipTLS, "", "skip-tls", "don't generate a self-signed TLS certificate")
	dockerSub.Int(&expPort, "", "port", "port override (defaults to the container's own port)")
	exportCmd.AttachSubcommand(dockerSub, 1)
	add(exportCmd, func(ctx context.Context, a *app.App, p *present.Printer) error {
		if !dockerSub.Used {
			return apperrors.New(apperrors.CodeUnknown, apperrors.SeverityError, "export requires the docker subcommand")
		}
		res, err := a.Export.Export(ctx, engine.ID(expEngine), expName, dockerexport.Options{
			OutputDir: expOut, IncludeData: expIncludeData, SkipTLS: expSkipTLS, Port: expPort,
		})
		if err != nil {
			return err
		}
		p.JSON(res, func() { p.Success("exported %s/%s to %s", expEngine, expName, res.OutputDir) })
		return nil
	})

	var doctorFix bool
	doctorCmd := flaggy.NewSubcommand("doctor")
	doctorCmd.Description = "Run health checks against the local SpinDB installation"
	doctorCmd.Bool(&doctorFix, "", "fix", "attempt to fix any non-ok check automatically")
	add(doctorCmd, func(ctx context.Context, a *app.App, p *present.Printer) error {
		results := a.Doctor.Run(ctx)
		var failedFixes []string
		if doctorFix {
			var fixErr error
			failedFixes, fixErr = doctor.Fix(ctx, results)
			if fixErr != nil {
				p.Info("some fixes failed: %v", fixErr)
			}
		}
		hadIssue := false
		p.JSON(map[string]interface{}{"results": results, "failedFixes": failedFixes}, func() {
			for _, r := range results {
				fmt.Fprintf(os.Stdout, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
				if r.Status != doctor.StatusOK {
					hadIssue = true
				}
			}
		})
		for _, r := range results {
			if r.Status != doctor.StatusOK {
				hadIssue = true
			}
		}
		if hadIssue && !doctorFix {
			return apperrors.New(apperrors.CodeUnknown, apperrors.SeverityWarn, "doctor found one or more issues")
		}
		return nil
	})

	return cmds
}

// loadWithEngine loads a container's persisted config and resolves its
// Engine implementation together, the pair nearly every single-container
// subcommand needs.
func loadWithEngine(a *app.App, engineID, name string) (*engine.ContainerConfig, engine.Engine, error) {
	cfgs, err := a.Containers.List(context.Background())
	if err != nil {
		return nil, nil, err
	}
	for _, cfg := range cfgs {
		if string(cfg.Engine) == engineID && cfg.Name == name {
			e, ok := a.Containers.Engines[cfg.Engine]
			if !ok {
				return nil, nil, apperrors.New(apperrors.CodeContainerNotFound, apperrors.SeverityError,
					"no engine registered for "+engineID)
			}
			return cfg, e, nil
		}
	}
	return nil, nil, apperrors.New(apperrors.CodeContainerNotFound, apperrors.SeverityError,
		"no container named "+name+" for engine "+engineID)
}

// resolveBuildInfo fills in version/commit/buildDate from the Go module's
// embedded VCS metadata when ldflags weren't used to set them, mirroring
// the prior implementation's updateBuildInfo.
func resolveBuildInfo() {
	if version != defaultVersion {
		return
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			commit = setting.Value
			if len(commit) > 7 {
				version = commit[:7]
			} else {
				version = commit
			}
		case "vcs.time":
			buildDate = setting.Value
		}
	}
}
