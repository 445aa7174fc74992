package prtemplate

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Lint rule names.
const (
	RuleHeadings = "headings"
	RuleCheckbox = "checkbox"
	RuleServers  = "servers"
)

// Problem is one lint finding. Line is 0 when the finding has no single
// source line.
type Problem struct {
	Line    int
	Rule    string
	Message string
}

func (p Problem) String() string {
	if p.Line > 0 {
		return fmt.Sprintf("line %d: [%s] %s", p.Line, p.Rule, p.Message)
	}
	return fmt.Sprintf("[%s] %s", p.Rule, p.Message)
}

// Lint checks doc against the template's structure: the level-2 headings
// and their order, the shape of every checkbox line, and the server list.
func Lint(doc Document) []Problem {
	var out []Problem
	out = append(out, lintHeadings(doc)...)
	out = append(out, lintCheckboxes(doc)...)
	out = append(out, lintServers(doc)...)
	return out
}

// Check parses src and lints it.
func Check(src []byte) ([]Problem, error) {
	doc, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return Lint(doc), nil
}

func lintHeadings(doc Document) []Problem {
	var (
		out   []Problem
		known []Section
	)
	present := map[string]bool{}
	for _, s := range doc.Sections {
		switch {
		case s.Level == 2 && slices.Contains(Headings, s.Heading):
			known = append(known, s)
			present[s.Heading] = true
		case s.Level == 2:
			out = append(out, Problem{Line: s.Line, Rule: RuleHeadings,
				Message: fmt.Sprintf("unexpected heading %q", s.Heading)})
		case s.Level > 0 && slices.Contains(Headings, s.Heading):
			out = append(out, Problem{Line: s.Line, Rule: RuleHeadings,
				Message: fmt.Sprintf("heading %q must be level 2, found level %d", s.Heading, s.Level)})
		}
	}

	var want []string
	for _, h := range Headings {
		if present[h] {
			want = append(want, h)
		} else {
			out = append(out, Problem{Rule: RuleHeadings, Message: fmt.Sprintf("missing heading %q", h)})
		}
	}
	return append(out, lintHeadingOrder(want, known)...)
}

// lintHeadingOrder aligns the known headings against the expected order and
// reports the ones outside the longest in-order run.
func lintHeadingOrder(want []string, got []Section) []Problem {
	names := make([]string, len(got))
	for i, s := range got {
		names[i] = s.Heading
	}
	dmp := diffmatchpatch.New()
	// No timeout keeps the diff minimal.
	dmp.DiffTimeout = 0
	diffs := dmp.DiffMain(encodeHeadings(want), encodeHeadings(names), false)

	counts := map[string]int{}
	for _, name := range names {
		counts[name]++
	}
	var out []Problem
	next := 0
	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffDelete {
			continue
		}
		for range utf8.RuneCountInString(d.Text) {
			s := got[next]
			next++
			if d.Type == diffmatchpatch.DiffInsert {
				msg := fmt.Sprintf("heading %q is out of order", s.Heading)
				if counts[s.Heading] > 1 {
					msg = fmt.Sprintf("heading %q appears more than once", s.Heading)
				}
				out = append(out, Problem{Line: s.Line, Rule: RuleHeadings, Message: msg})
			}
		}
	}
	return out
}

// encodeHeadings maps each known heading to one private-use rune so the
// diff runs over whole headings.
func encodeHeadings(names []string) string {
	var b strings.Builder
	for _, name := range names {
		b.WriteRune(rune(0xE000 + slices.Index(Headings, name)))
	}
	return b.String()
}

func lintCheckboxes(doc Document) []Problem {
	var out []Problem
	for _, s := range doc.Sections {
		isBoxSection := slices.Contains(CheckboxSections, s.Heading)
		if isBoxSection && s.Level == 2 && len(s.Items) == 0 {
			out = append(out, Problem{Line: s.Line, Rule: RuleCheckbox,
				Message: fmt.Sprintf("section %q has no checkbox items", s.Heading)})
		}
		for _, item := range s.Items {
			switch {
			case item.Malformed || !checkboxLine.MatchString(item.Raw):
				out = append(out, Problem{Line: item.Line, Rule: RuleCheckbox,
					Message: fmt.Sprintf("checkbox line %q must match \"- [ ] <label>\"", item.Raw)})
			case item.Checked:
				out = append(out, Problem{Line: item.Line, Rule: RuleCheckbox,
					Message: fmt.Sprintf("checkbox %q is checked in the template", item.Label)})
			}
			if !isBoxSection {
				out = append(out, Problem{Line: item.Line, Rule: RuleCheckbox,
					Message: fmt.Sprintf("checkbox %q is outside a checkbox section", item.Label)})
			}
		}
	}
	return out
}

func lintServers(doc Document) []Problem {
	s, ok := doc.Section(ServersSection)
	if !ok {
		// Reported by the heading rule.
		return nil
	}
	want := append(slices.Clone(Servers), Categories...)
	counts := map[string]int{}
	var out []Problem
	for _, item := range s.Items {
		counts[item.Label]++
		switch {
		case counts[item.Label] == 2:
			out = append(out, Problem{Line: item.Line, Rule: RuleServers,
				Message: fmt.Sprintf("%q is listed more than once", item.Label)})
		case counts[item.Label] == 1 && !slices.Contains(want, item.Label):
			out = append(out, Problem{Line: item.Line, Rule: RuleServers,
				Message: fmt.Sprintf("unexpected entry %q", item.Label)})
		}
	}
	for _, label := range want {
		if counts[label] == 0 {
			out = append(out, Problem{Line: s.Line, Rule: RuleServers,
				Message: fmt.Sprintf("missing entry %q", label)})
		}
	}
	return out
}
