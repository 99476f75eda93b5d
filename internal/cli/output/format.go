// Package output renders command results for ftserver and ftclient as
// tables, JSON or YAML.
package output

import (
	"fmt"
	"io"
	"strings"
)

// Format selects how a Printer renders values.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

var formatNames = map[string]Format{
	"":      FormatTable,
	"table": FormatTable,
	"json":  FormatJSON,
	"yaml":  FormatYAML,
	"yml":   FormatYAML,
}

// ParseFormat maps an -o flag value to a Format. Case and surrounding space
// are ignored; the empty string means table.
func ParseFormat(s string) (Format, error) {
	if f, ok := formatNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return f, nil
	}
	return "", fmt.Errorf("invalid output format %q: want table, json or yaml", s)
}

const (
	ansiYellow = "\033[33m"
	ansiReset  = "\033[0m"
)

// Printer writes command results to one writer in one format.
type Printer struct {
	out    io.Writer
	format Format
	color  bool
}

// NewPrinter returns a Printer writing to out. color enables ANSI colors
// for warnings and should only be set for terminals.
func NewPrinter(out io.Writer, format Format, color bool) *Printer {
	return &Printer{out: out, format: format, color: color}
}

// Format returns the printer's format.
func (p *Printer) Format() Format {
	return p.format
}

// Print renders v. In table format v is drawn through TableRenderer or
// PairsRenderer when it implements one, and as JSON otherwise.
func (p *Printer) Print(v any) error {
	switch p.format {
	case FormatJSON:
		return PrintJSON(p.out, v)
	case FormatYAML:
		return PrintYAML(p.out, v)
	case FormatTable:
	default:
		return fmt.Errorf("unknown output format %q", p.format)
	}

	if r, ok := v.(TableRenderer); ok {
		return PrintTable(p.out, r)
	}
	if r, ok := v.(PairsRenderer); ok {
		return SimpleTable(p.out, r.Pairs())
	}
	return PrintJSON(p.out, v)
}

// Println writes args separated by spaces and a newline.
func (p *Printer) Println(args ...any) {
	_, _ = fmt.Fprintln(p.out, args...)
}

// Warning writes msg on its own line, yellow when color is enabled.
func (p *Printer) Warning(msg string) {
	if p.color {
		msg = ansiYellow + msg + ansiReset
	}
	_, _ = fmt.Fprintln(p.out, msg)
}
