package mcpctl

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/mcpsuite/mcpsuite/internal/services/mcp/catalog"
)

const width = 60

var (
	bold   = color.New(color.Bold)
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
)

type printer struct {
	w io.Writer
}

func newPrinter(w io.Writer) printer { return printer{w: w} }

func (p printer) line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p printer) blank() { fmt.Fprintln(p.w) }

func (p printer) header(text string) {
	pad := (width - len(text)) / 2
	if pad < 0 {
		pad = 0
	}
	p.blank()
	bold.Fprintln(p.w, strings.Repeat("=", width))
	bold.Fprintln(p.w, strings.Repeat(" ", pad)+text)
	bold.Fprintln(p.w, strings.Repeat("=", width))
	p.blank()
}

func (p printer) section(title string) {
	bold.Fprintln(p.w, title)
	fmt.Fprintln(p.w, strings.Repeat("─", width))
}

func (p printer) success(text string) { fmt.Fprintf(p.w, "%s %s\n", green.Sprint("✓"), text) }
func (p printer) fail(text string)    { fmt.Fprintf(p.w, "%s %s\n", red.Sprint("✗"), text) }
func (p printer) warn(text string)    { fmt.Fprintf(p.w, "%s %s\n", yellow.Sprint("⚠"), text) }
func (p printer) info(text string)    { fmt.Fprintf(p.w, "%s %s\n", cyan.Sprint("ℹ"), text) }

func (p printer) check(ok bool) string {
	if ok {
		return green.Sprint("✓")
	}
	return red.Sprint("✗")
}

func (p printer) availableServers() {
	p.line("\nAvailable servers:")
	for _, s := range catalog.All() {
		p.line("  • %-15s - %s", s.Kind, s.Name)
	}
	p.blank()
}

func formatUptime(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%dm %ds", total/60, total%60)
}
