// Package present formats SpinDB's human-facing CLI output: colorized
// status lines, human-readable byte sizes for backup and disk-usage
// reporting, and a JSON bypass for scripted callers (--json).
package present

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/docker/go-units"
	"github.com/fatih/color"

	"github.com/spindb/spindb/internal/apperrors"
)

// Mode selects how output is rendered.
type Mode int

const (
	ModeHuman Mode = iota
	ModeJSON
)

// Printer renders status, error, and tabular output according to its Mode.
// A single Printer is constructed once per CLI invocation from the --json
// flag and threaded through every command.
type Printer struct {
	Mode Mode
	Out  io.Writer
	Err  io.Writer
}

func New(mode Mode, out, err io.Writer) *Printer {
	return &Printer{Mode: mode, Out: out, Err: err}
}

// Size renders a byte count the way backup results and container disk-usage
// reports want it: binary units (KiB/MiB/GiB), matching what operators
// expect from du-like tooling.
func Size(bytes int64) string {
	return units.BytesSize(float64(bytes))
}

// Colored wraps str in attr when the Printer is in human mode; JSON mode
// never carries ANSI escapes since it must stay machine-parseable.
func (p *Printer) Colored(str string, attr color.Attribute) string {
	if p.Mode == ModeJSON {
		return str
	}
	return color.New(attr).Sprint(str)
}

// Success prints a green-prefixed confirmation line in human mode, or a
// {"status":"ok","message":...} object in JSON mode.
func (p *Printer) Success(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if p.Mode == ModeJSON {
		p.writeJSON(map[string]string{"status": "ok", "message": msg})
		return
	}
	fmt.Fprintln(p.Out, p.Colored("✓ ", color.FgGreen)+msg)
}

// Info prints a plain informational line in human mode, or a
// {"status":"info",...} object in JSON mode.
func (p *Printer) Info(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if p.Mode == ModeJSON {
		p.writeJSON(map[string]string{"status": "info", "message": msg})
		return
	}
	fmt.Fprintln(p.Out, msg)
}

// Error renders err to the Printer's error stream. In human mode it colors
// by SpinError.Severity (yellow for warnings, red for errors) and appends
// the remediation hint on its own line if one is set. In JSON mode it emits
// a single structured object so scripted callers can branch on Code.
func (p *Printer) Error(err error) {
	if err == nil {
		return
	}
	se, ok := err.(*apperrors.SpinError)
	if !ok {
		if p.Mode == ModeJSON {
			p.writeErrJSON(map[string]string{"status": "error", "message": err.Error()})
			return
		}
		fmt.Fprintln(p.Err, p.Colored("✗ "+err.Error(), color.FgRed))
		return
	}

	if p.Mode == ModeJSON {
		obj := map[string]string{
			"status":  "error",
			"code":    string(se.Code),
			"message": se.Message,
		}
		if se.Remediation != "" {
			obj["remediation"] = se.Remediation
		}
		p.writeErrJSON(obj)
		return
	}

	attr := color.FgRed
	prefix := "✗"
	if se.Severity == apperrors.SeverityWarn {
		attr = color.FgYellow
		prefix = "!"
	}
	fmt.Fprintln(p.Err, p.Colored(fmt.Sprintf("%s [%s] %s", prefix, se.Code, se.Message), attr))
	if se.Remediation != "" {
		fmt.Fprintln(p.Err, p.Colored("  -> "+se.Remediation, color.FgCyan))
	}
}

// JSON prints v as-is in JSON mode; in human mode it calls humanFn so the
// caller can supply its own table/listing renderer for the same data.
func (p *Printer) JSON(v interface{}, humanFn func()) {
	if p.Mode == ModeJSON {
		p.writeJSON(v)
		return
	}
	humanFn()
}

func (p *Printer) writeJSON(v interface{}) {
	enc := json.NewEncoder(p.Out)
	_ = enc.Encode(v)
}

func (p *Printer) writeErrJSON(v interface{}) {
	enc := json.NewEncoder(p.Err)
	_ = enc.Encode(v)
}
