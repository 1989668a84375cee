// Package utils holds small generic helpers (no other package in this
// repository imports it), adapted from the prior implementation's pkg/utils.go with every TUI-only helper
// (coloring, padding, gocui attributes) dropped — see DESIGN.md.
package utils

import (
	"bytes"
	"io"
	"strings"
	"text/template"
)

// ResolvePlaceholderString replaces {{key}} placeholders in str with the
// corresponding value from arguments. Placeholders with no matching key are
// left as they are.
func ResolvePlaceholderString(str string, arguments map[string]string) string {
	for key, value := range arguments {
		str = strings.ReplaceAll(str, "{{"+key+"}}", value)
	}
	return str
}

// ApplyTemplate renders a Go text/template against object, returning the
// original string unchanged if parsing/execution fails (mirroring the
// prior implementation's best-effort ApplyTemplate, used for non-critical string
// formatting where a broken template shouldn't fail the whole operation).
func ApplyTemplate(str string, object interface{}) string {
	t, err := template.New("").Parse(str)
	if err != nil {
		return str
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, object); err != nil {
		return str
	}
	return buf.String()
}

// CloseMany closes every closer, returning the first error encountered (if
// any) after attempting to close all of them.
func CloseMany(closers []io.Closer) error {
	var firstErr error
	for _, c := range closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Max returns the larger of x and y.
func Max(x, y int) int {
	if x > y {
		return x
	}
	return y
}
