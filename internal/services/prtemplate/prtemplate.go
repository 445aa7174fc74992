// Package prtemplate holds the repository's pull request template and the
// lint rules that keep its structure stable.
package prtemplate

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

//go:embed template.md
var template []byte

// Headings are the level-2 section headings, in order.
var Headings = []string{
	"Description",
	"Type of Change",
	"Related Issues",
	"Changes Made",
	"Server(s) Affected",
	"Testing",
	"Test Results",
	"Screenshots/Logs",
	"Breaking Changes",
	"Configuration Changes",
	"Documentation Updates",
	"Checklist",
	"Additional Notes",
	"Reviewer Notes",
}

// CheckboxSections are the sections made of checkbox items.
var CheckboxSections = []string{
	"Type of Change",
	"Server(s) Affected",
	"Testing",
	"Documentation Updates",
	"Checklist",
}

// ServersSection is the heading whose items name the affected servers.
const ServersSection = "Server(s) Affected"

// Servers are the MCP servers listed under ServersSection.
var Servers = []string{
	"GitHub Server",
	"Jira Server",
	"File Server",
	"Bash Server",
	"Internet Server",
	"Memory Cache Server",
	"Frappe Server",
	"Goal Agent Server",
}

// Categories are the non-server areas listed under ServersSection.
var Categories = []string{
	"Shared Utilities (base_client, config, logging)",
	"Dashboard",
	"CLI (mcpctl)",
	"Documentation",
}

var (
	checkboxLine  = regexp.MustCompile(`^- \[ \] \S`)
	checkboxShape = regexp.MustCompile(`^\s*[-*+]?\s*\[[ xX]?\]`)
)

// Template returns a copy of the canonical template.
func Template() []byte {
	return bytes.Clone(template)
}

// Document is a parsed template.
type Document struct {
	// Sections are in source order. Content before the first heading lands
	// in a section with an empty heading and level 0.
	Sections []Section
}

// Section is a heading and the checkbox items under it.
type Section struct {
	Heading string
	Level   int
	Line    int
	Items   []Item
}

// Item is one checkbox.
type Item struct {
	Label   string
	Checked bool
	Line    int
	// Raw is the full source line.
	Raw string
	// Malformed is set for lines that look like checkboxes but do not
	// parse as task list items.
	Malformed bool
}

// Section returns the first section with the given heading.
func (d Document) Section(heading string) (Section, bool) {
	for _, s := range d.Sections {
		if s.Heading == heading {
			return s, true
		}
	}
	return Section{}, false
}

// Parse reads Markdown into a Document.
func Parse(src []byte) (Document, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.TaskList))
	root := md.Parser().Parse(text.NewReader(src))
	lines := splitLines(src)

	doc := Document{Sections: []Section{{}}}
	current := func() *Section { return &doc.Sections[len(doc.Sections)-1] }
	seen := map[int]bool{}

	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			doc.Sections = append(doc.Sections, Section{
				Heading: strings.TrimSpace(inlineText(node, src)),
				Level:   node.Level,
				Line:    blockLine(node, src),
			})
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			box, block := taskBox(node)
			if box == nil {
				return ast.WalkContinue, nil
			}
			line := blockLine(block, src)
			seen[line] = true
			current().Items = append(current().Items, Item{
				Label:   strings.TrimSpace(inlineText(block, src)),
				Checked: box.IsChecked,
				Line:    line,
				Raw:     lineAt(lines, line),
			})
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return Document{}, fmt.Errorf("walk markdown: %w", err)
	}

	for _, item := range strayCheckboxes(lines, seen) {
		s := sectionAt(doc.Sections, item.Line)
		s.Items = append(s.Items, item)
	}
	for i := range doc.Sections {
		slices.SortStableFunc(doc.Sections[i].Items, func(a, b Item) int { return a.Line - b.Line })
	}
	if first := doc.Sections[0]; first.Heading == "" && len(first.Items) == 0 {
		doc.Sections = doc.Sections[1:]
	}
	return doc, nil
}

// taskBox returns the checkbox leading a list item along with the text
// block that holds it.
func taskBox(item *ast.ListItem) (*extast.TaskCheckBox, ast.Node) {
	block := item.FirstChild()
	if block == nil {
		return nil, nil
	}
	box, ok := block.FirstChild().(*extast.TaskCheckBox)
	if !ok {
		return nil, nil
	}
	return box, block
}

// inlineText concatenates the text under n. Soft and hard line breaks
// become spaces.
func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

// blockLine returns the 1-based line where a block node starts.
func blockLine(n ast.Node, src []byte) int {
	segs := n.Lines()
	if segs == nil || segs.Len() == 0 {
		return 0
	}
	return bytes.Count(src[:segs.At(0).Start], []byte("\n")) + 1
}

func splitLines(src []byte) []string {
	var out []string
	scanner := bufio.NewScanner(bytes.NewReader(src))
	scanner.Buffer(make([]byte, 64*1024), len(src)+1)
	for scanner.Scan() {
		out = append(out, strings.TrimRight(scanner.Text(), "\r"))
	}
	return out
}

func lineAt(lines []string, n int) string {
	if n < 1 || n > len(lines) {
		return ""
	}
	return lines[n-1]
}

// strayCheckboxes finds checkbox-shaped lines outside fenced code that the
// parser did not turn into task items.
func strayCheckboxes(lines []string, seen map[int]bool) []Item {
	var (
		out    []Item
		fenced bool
	)
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			fenced = !fenced
			continue
		}
		if fenced || seen[i+1] || !checkboxShape.MatchString(line) {
			continue
		}
		marker := checkboxShape.FindString(line)
		out = append(out, Item{
			Label:     strings.TrimSpace(line[len(marker):]),
			Checked:   strings.ContainsAny(marker, "xX"),
			Line:      i + 1,
			Raw:       line,
			Malformed: true,
		})
	}
	return out
}

func sectionAt(sections []Section, line int) *Section {
	idx := 0
	for i, s := range sections {
		if s.Line != 0 && s.Line <= line {
			idx = i
		}
	}
	return &sections[idx]
}
