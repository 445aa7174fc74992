package jira

import (
	"strings"
)

// JQLQuery holds the common search criteria.
type JQLQuery struct {
	Project   string
	Status    string
	Assignee  string
	IssueType string
	Priority  string
	Labels    []string
	Text      string
	OrderBy   string
}

func quoteJQL(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
}

// BuildJQL joins the set criteria with AND. Function values such as
// currentUser() are left unquoted.
func BuildJQL(q JQLQuery) string {
	var conds []string
	add := func(field, value string) {
		if value = strings.TrimSpace(value); value != "" {
			conds = append(conds, field+" = "+quoteJQL(value))
		}
	}
	add("project", q.Project)
	add("status", q.Status)
	if a := strings.TrimSpace(q.Assignee); strings.HasSuffix(a, "()") {
		conds = append(conds, "assignee = "+a)
	} else {
		add("assignee", a)
	}
	add("issuetype", q.IssueType)
	add("priority", q.Priority)
	if len(q.Labels) > 0 {
		quoted := make([]string, len(q.Labels))
		for i, l := range q.Labels {
			quoted[i] = quoteJQL(l)
		}
		conds = append(conds, "labels in ("+strings.Join(quoted, ", ")+")")
	}
	if t := strings.TrimSpace(q.Text); t != "" {
		conds = append(conds, "text ~ "+quoteJQL(t))
	}
	order := strings.TrimSpace(q.OrderBy)
	if len(conds) == 0 {
		if order == "" {
			order = "created DESC"
		}
		return "order by " + order
	}
	jql := strings.Join(conds, " AND ")
	if order != "" {
		jql += " ORDER BY " + order
	}
	return jql
}
