package platform

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/mgutz/str"
)

// Shell centralizes how we turn a command-line string into an *exec.Cmd,
// adapted from the prior implementation's OSCommand (pkg/commands/os.go). Engine
// implementations use it for runScript/connect/executeQuery invocations of
// native client binaries instead of each hand-rolling exec.Command calls.
type Shell struct {
	shellName string
	shellArg  string
}

// NewShell returns the Shell for the current OS: bash -c on Unix, cmd /c on
// Windows, matching the prior implementation's getPlatform() split.
func NewShell() *Shell {
	osName, _ := Detect()
	if osName == OSWindows {
		return &Shell{shellName: "cmd", shellArg: "/c"}
	}
	return &Shell{shellName: "bash", shellArg: "-c"}
}

// Argv splits a command-line string into argv the same way the prior implementation does
// for docker-compose command templates.
func (s *Shell) Argv(commandLine string) []string {
	return str.ToArgv(commandLine)
}

// Command builds an *exec.Cmd for an argv-style invocation (binary plus
// args, no shell interpretation) — the common path for invoking an engine's
// own client binary directly.
func (s *Shell) Command(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = os.Environ()
	return cmd
}

// CommandString builds an *exec.Cmd that runs commandLine through the host
// shell. On Windows some spawns must go through a shell to decode
// command-lines safely; this is the centralization point for that.
func (s *Shell) CommandString(ctx context.Context, commandLine string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, s.shellName, s.shellArg, commandLine)
	cmd.Env = os.Environ()
	return cmd
}

// Quote wraps a string in platform-appropriate quotation marks, used when
// building a connect/runScript command line for the host shell.
func (s *Shell) Quote(message string) string {
	if s.shellName == "cmd" {
		message = strings.NewReplacer(`"`, `\"`).Replace(message)
		return `"` + message + `"`
	}
	message = strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		`$`, `\$`,
		"`", "\\`",
	).Replace(message)
	return `"` + message + `"`
}
