package jira

import (
	"strings"
)

// ADF is an Atlassian Document Format node.
type ADF struct {
	Type    string         `json:"type"`
	Version int            `json:"version,omitempty"`
	Text    string         `json:"text,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []ADF          `json:"content,omitempty"`
}

func paragraph(text string) ADF {
	return ADF{Type: "paragraph", Content: []ADF{{Type: "text", Text: text}}}
}

// ToADF wraps plain text in a document. With rich, blank-line separated
// paragraphs become separate paragraph nodes.
func ToADF(text string, rich bool) ADF {
	doc := ADF{Type: "doc", Version: 1, Content: []ADF{}}
	if text == "" {
		return doc
	}
	if rich {
		for _, para := range strings.Split(text, "\n\n") {
			if para = strings.TrimSpace(para); para != "" {
				doc.Content = append(doc.Content, paragraph(para))
			}
		}
	}
	if len(doc.Content) == 0 {
		doc.Content = append(doc.Content, paragraph(text))
	}
	return doc
}

// FlattenADF renders a decoded ADF document (or a plain string, as
// returned by older APIs) as text.
func FlattenADF(node any) string {
	var b strings.Builder
	flatten(&b, node)
	return strings.TrimSpace(b.String())
}

func flatten(b *strings.Builder, node any) {
	switch n := node.(type) {
	case string:
		b.WriteString(n)
	case []any:
		for _, child := range n {
			flatten(b, child)
		}
	case map[string]any:
		attrs, _ := n["attrs"].(map[string]any)
		switch n["type"] {
		case "text":
			s, _ := n["text"].(string)
			b.WriteString(s)
			return
		case "hardBreak":
			b.WriteString("\n")
			return
		case "mention":
			s, _ := attrs["text"].(string)
			b.WriteString(s)
			return
		case "emoji":
			s, _ := attrs["shortName"].(string)
			b.WriteString(s)
			return
		case "inlineCard":
			s, _ := attrs["url"].(string)
			b.WriteString(s)
			return
		case "listItem":
			b.WriteString("- ")
		}
		flatten(b, n["content"])
		switch n["type"] {
		case "paragraph", "heading", "codeBlock", "blockquote", "rule":
			if !strings.HasSuffix(b.String(), "\n") {
				b.WriteString("\n")
			}
		}
	}
}
