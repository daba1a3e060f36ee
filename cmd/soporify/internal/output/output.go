// Package output renders command results as styled text, tables or JSON
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
)

// Formats accepted by --format
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	MutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))
)

// Printer writes results to Out and diagnostics to Err
type Printer struct {
	Out    io.Writer
	Err    io.Writer
	Format string
}

// ValidFormat reports whether f is a supported --format value
func ValidFormat(f string) bool {
	return f == FormatTable || f == FormatJSON
}

// JSON reports whether results should be printed as JSON
func (p *Printer) JSON() bool {
	return p.Format == FormatJSON
}

// PrintJSON writes v as indented JSON
func (p *Printer) PrintJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(p.Out, string(data))
	return err
}

// Result prints v as JSON in JSON mode, otherwise calls human
func (p *Printer) Result(v any, human func()) error {
	if p.JSON() {
		return p.PrintJSON(v)
	}
	human()
	return nil
}

func (p *Printer) Table(headers []string, rows [][]string) {
	table := tablewriter.NewWriter(p.Out)
	table.SetHeader(headers)
	table.SetBorder(true)
	table.SetRowLine(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("│")
	table.SetColumnSeparator("│")
	table.SetRowSeparator("─")
	table.SetHeaderLine(true)
	table.SetTablePadding(" ")
	table.AppendBulk(rows)
	table.Render()
}

func (p *Printer) KeyValue(pairs [][]string) {
	maxKeyLen := 0
	for _, pair := range pairs {
		if len(pair[0]) > maxKeyLen {
			maxKeyLen = len(pair[0])
		}
	}

	for _, pair := range pairs {
		key := MutedStyle.Render(fmt.Sprintf("%-*s", maxKeyLen, pair[0]))
		value := ValueStyle.Render(pair[1])
		fmt.Fprintf(p.Out, "%s  %s\n", key, value)
	}
}

func (p *Printer) Success(msg string) {
	fmt.Fprintln(p.Err, SuccessStyle.Render("✓ ")+msg)
}

func (p *Printer) Error(msg string) {
	fmt.Fprintln(p.Err, ErrorStyle.Render("✗ ")+msg)
}

func (p *Printer) Warning(msg string) {
	fmt.Fprintln(p.Err, WarningStyle.Render("⚠ ")+msg)
}

func (p *Printer) Info(msg string) {
	fmt.Fprintln(p.Out, MutedStyle.Render(msg))
}

func (p *Printer) Header(msg string) {
	fmt.Fprintln(p.Out, HeaderStyle.Render(msg))
}

// FormatState colors a lifecycle or token state
func FormatState(state string) string {
	switch state {
	case "authenticated", "valid", "yes":
		return SuccessStyle.Render(state)
	case "exchanging", "pending":
		return WarningStyle.Render(state)
	case "expired", "no_auth", "no", "missing":
		return ErrorStyle.Render(state)
	default:
		return state
	}
}
