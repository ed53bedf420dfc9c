package db

import "strings"

// TagQuery builds an FT.SEARCH clause matching any of values on a TAG field:
// @field:{v1|v2}. Values are escaped; an empty values list yields "".
func TagQuery(field string, values ...string) string {
	if len(values) == 0 {
		return ""
	}
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = tagEscaper.Replace(v)
	}
	return "@" + field + ":{" + strings.Join(escaped, "|") + "}"
}

// Not negates a clause; an empty clause stays empty.
func Not(clause string) string {
	if clause == "" {
		return ""
	}
	return "-" + clause
}

// Group parenthesizes a caller-supplied query so its operators stay inside
// when it is joined with other clauses. "" and "*" group to "".
func Group(query string) string {
	query = strings.TrimSpace(query)
	if query == "" || query == "*" {
		return ""
	}
	return "(" + query + ")"
}

// And joins non-empty FT.SEARCH clauses; no clauses match everything.
func And(clauses ...string) string {
	parts := make([]string, 0, len(clauses))
	for _, c := range clauses {
		if c != "" {
			parts = append(parts, c)
		}
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " ")
}

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	"|", "\\|",
	" ", "\\ ",
)
