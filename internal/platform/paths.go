// Package platform resolves the per-user storage layout and detects the
// host OS/CPU, plus everything that needs OS-specific process handling:
// liveness checks, find-by-port, and graceful/force termination. The shape
// is adapted from the prior implementation's pkg/commands.Platform/OSCommand split (one
// struct describing the host, one holding the command-running behavior),
// generalized from "docker/podman host" detection to the generic path and
// process primitives the container lifecycle engine needs.
package platform

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// OS identifiers, matching the closed set of supported platforms.
const (
	OSDarwin  = "darwin"
	OSLinux   = "linux"
	OSWindows = "win32"
)

// Arch identifiers, matching the closed set of supported architectures.
const (
	ArchX64   = "x64"
	ArchARM64 = "arm64"
)

// Detect returns the current (OS, Arch) pair in SpinDB's naming convention.
func Detect() (string, string) {
	var os string
	switch runtime.GOOS {
	case "darwin":
		os = OSDarwin
	case "windows":
		os = OSWindows
	default:
		os = OSLinux
	}

	var arch string
	switch runtime.GOARCH {
	case "arm64":
		arch = ArchARM64
	default:
		arch = ArchX64
	}
	return os, arch
}

// ExecutableExtension returns "" on Unix and ".exe" on Windows.
func ExecutableExtension() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}

// Bin returns root/bin.
func Bin(root string) string { return filepath.Join(root, "bin") }

// Containers returns root/containers.
func Containers(root string) string { return filepath.Join(root, "containers") }

// ConfigFile returns root/config.json.
func ConfigFile(root string) string { return filepath.Join(root, "config.json") }

// BinaryDirName builds the "{engine}-{version}-{platform}-{arch}" directory
// name listInstalled parses back apart.
func BinaryDirName(engine, version, plat, arch string) string {
	return fmt.Sprintf("%s-%s-%s-%s", engine, version, plat, arch)
}

// BinaryDir returns root/bin/{engine}-{version}-{platform}-{arch}.
func BinaryDir(root, engine, version, plat, arch string) string {
	return filepath.Join(Bin(root), BinaryDirName(engine, version, plat, arch))
}

// BinarySubdir returns binDir/bin, the canonical executable location every
// InstalledBinary normalizes to .
func BinarySubdir(binDir string) string {
	return filepath.Join(binDir, "bin")
}

// ContainerDir returns root/containers/{engine}/{name}.
func ContainerDir(root, engine, name string) string {
	return filepath.Join(Containers(root), engine, name)
}

// ContainerConfigFile returns the container.json path within a container dir.
func ContainerConfigFile(root, engine, name string) string {
	return filepath.Join(ContainerDir(root, engine, name), "container.json")
}

// ContainerData returns the data subdirectory (or data file, for file-based
// engines) within a container dir, named per the engine's dataSubdir
// convention (e.g. "data" for postgres, a bare filename for sqlite).
func ContainerData(root, engine, name, dataSubdir string) string {
	return filepath.Join(ContainerDir(root, engine, name), dataSubdir)
}

// ContainerLog returns the log file path within a container dir.
func ContainerLog(root, engine, name, logFileName string) string {
	return filepath.Join(ContainerDir(root, engine, name), logFileName)
}

// ContainerLockFile returns the advisory per-container lock path acquired
// for the duration of the Container Manager's Create and Delete.
func ContainerLockFile(root, engine, name string) string {
	return filepath.Join(ContainerDir(root, engine, name), ".lock")
}

// ContainerPid resolves the PID file location. Some engines (those whose
// server writes its own pidfile inside the data dir, like PostgreSQL's
// postmaster.pid) must resolve under data/; others resolve under the
// container directory. pidInDataDir encodes that per-engine policy; it is
// the caller's (engine.EngineDefaults) responsibility to say which one
// applies.
func ContainerPid(root, engine, name, pidFileName, dataSubdir string, pidInDataDir bool) string {
	if pidInDataDir {
		return filepath.Join(ContainerData(root, engine, name, dataSubdir), pidFileName)
	}
	return filepath.Join(ContainerDir(root, engine, name), pidFileName)
}
