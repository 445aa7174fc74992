package jira

import (
	"encoding/json"
	"testing"
)

func TestToADF(t *testing.T) {
	empty := ToADF("", false)
	if empty.Type != "doc" || empty.Version != 1 || len(empty.Content) != 0 {
		t.Fatalf("unexpected empty doc %+v", empty)
	}

	plain := ToADF("line one\n\nline two", false)
	if len(plain.Content) != 1 || plain.Content[0].Content[0].Text != "line one\n\nline two" {
		t.Fatalf("plain text should be one paragraph: %+v", plain)
	}

	rich := ToADF("first\n\n  second  \n\n\n", true)
	if len(rich.Content) != 2 || rich.Content[1].Content[0].Text != "second" {
		t.Fatalf("rich text should split paragraphs: %+v", rich)
	}

	blank := ToADF("   ", true)
	if len(blank.Content) != 1 {
		t.Fatalf("whitespace-only rich text should keep one paragraph: %+v", blank)
	}
}

func TestFlattenADF(t *testing.T) {
	var doc any
	raw := `{"type":"doc","version":1,"content":[
		{"type":"heading","content":[{"type":"text","text":"Title"}]},
		{"type":"paragraph","content":[
			{"type":"text","text":"Hi "},
			{"type":"mention","attrs":{"text":"@ada"}},
			{"type":"hardBreak"},
			{"type":"text","text":"see "},
			{"type":"inlineCard","attrs":{"url":"https://example.com"}}
		]},
		{"type":"bulletList","content":[
			{"type":"listItem","content":[{"type":"paragraph","content":[{"type":"text","text":"one"}]}]},
			{"type":"listItem","content":[{"type":"paragraph","content":[{"type":"text","text":"two"}]}]}
		]}
	]}`
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatal(err)
	}
	want := "Title\nHi @ada\nsee https://example.com\n- one\n- two"
	if got := FlattenADF(doc); got != want {
		t.Fatalf("flatten = %q, want %q", got, want)
	}
	if got := FlattenADF("legacy text"); got != "legacy text" {
		t.Fatalf("string body = %q", got)
	}
	if got := FlattenADF(nil); got != "" {
		t.Fatalf("nil body = %q", got)
	}
}

func TestBuildJQL(t *testing.T) {
	tests := []struct {
		name  string
		query JQLQuery
		want  string
	}{
		{name: "empty", want: "order by created DESC"},
		{name: "empty with order", query: JQLQuery{OrderBy: "updated ASC"}, want: "order by updated ASC"},
		{
			name:  "project and status",
			query: JQLQuery{Project: "PROJ", Status: "In Progress"},
			want:  `project = "PROJ" AND status = "In Progress"`,
		},
		{
			name:  "current user",
			query: JQLQuery{Assignee: "currentUser()", IssueType: "Bug", OrderBy: "priority DESC"},
			want:  `assignee = currentUser() AND issuetype = "Bug" ORDER BY priority DESC`,
		},
		{
			name:  "labels and text",
			query: JQLQuery{Labels: []string{"ui", "p1"}, Text: `say "hi"`},
			want:  `labels in ("ui", "p1") AND text ~ "say \"hi\""`,
		},
		{
			name:  "priority",
			query: JQLQuery{Priority: "High", Assignee: "5b10ac8d82e05b22cc7d4ef5"},
			want:  `assignee = "5b10ac8d82e05b22cc7d4ef5" AND priority = "High"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildJQL(tt.query); got != tt.want {
				t.Fatalf("BuildJQL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateIssueKey(t *testing.T) {
	for _, key := range []string{"PROJ-1", "AB_2-99", "X1-10"} {
		if err := ValidateIssueKey(key); err != nil {
			t.Errorf("%s should be valid: %v", key, err)
		}
	}
	for _, key := range []string{"", "proj-1", "P-1", "PROJ", "PROJ-", "PROJ-1a", "1PROJ-2"} {
		if err := ValidateIssueKey(key); err == nil {
			t.Errorf("%q should be invalid", key)
		}
	}
}
