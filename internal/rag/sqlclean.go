package rag

import (
	"regexp"
	"strings"
)

var (
	topClause    = regexp.MustCompile(`(?i)\bSELECT\s+(DISTINCT\s+)?TOP\s+(\d+)\s+`)
	limitClause  = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)
	bracketIdent = regexp.MustCompile(`\[([^\[\]]+)\]`)
)

// StripFences removes a markdown code fence wrapper, with or without a
// language tag, returning the bare statement.
func StripFences(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		tag := strings.TrimSpace(t[:nl])
		if tag == "" || !strings.ContainsAny(tag, " \t") {
			t = t[nl+1:]
		}
	} else {
		// single-line fence such as ```sql SELECT 1```
		t = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "sql"))
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}

// RewriteDialect converts the T-SQL constructs the generator occasionally
// emits into their MySQL equivalents. SELECT TOP n becomes a trailing
// LIMIT n and [bracketed] identifiers become backtick-quoted ones.
func RewriteDialect(query string) string {
	q := strings.TrimSpace(query)
	q = strings.TrimSpace(strings.TrimSuffix(q, ";"))

	if m := topClause.FindStringSubmatchIndex(q); m != nil {
		limit := q[m[4]:m[5]]
		head := "SELECT "
		if m[2] >= 0 {
			head = "SELECT DISTINCT "
		}
		q = q[:m[0]] + head + q[m[1]:]
		if !limitClause.MatchString(q) {
			q += " LIMIT " + limit
		}
	}

	return bracketIdent.ReplaceAllString(q, "`$1`")
}

// Operation returns the leading SQL verb, uppercased.
func Operation(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}
