package sqldb

import "regexp"

var (
	namedPlaceholder = regexp.MustCompile(`@[A-Za-z_][A-Za-z0-9_]*`)
	quotedLiteral    = regexp.MustCompile(`'[^']*'`)
)

// HasNamedParams reports whether the statement carries @name placeholders
// outside string literals. The server would read an unbound @name as a NULL
// user variable and silently match nothing, so callers executing a statement
// without params must reject it instead.
func HasNamedParams(query string) bool {
	return namedPlaceholder.MatchString(quotedLiteral.ReplaceAllString(query, "''"))
}

// BindNamed rewrites @name placeholders to positional ? markers, consuming
// supplied params in the order the placeholders appear in the text. Only as
// many placeholders as there are params are substituted; any surplus
// placeholder is left in place and will fail at the server, which is the
// behavior we want for a generated query with a missing binding.
func BindNamed(query string, params []interface{}) (string, []interface{}) {
	if len(params) == 0 {
		return query, nil
	}

	used := 0
	bound := namedPlaceholder.ReplaceAllStringFunc(query, func(match string) string {
		if used >= len(params) {
			return match
		}
		used++
		return "?"
	})

	return bound, params[:used]
}
