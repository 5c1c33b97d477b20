package chatflow

import (
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// ResolveString replaces each {{key}} token in s with the context entry's
// string form. Tokens whose key is absent from the context are left
// verbatim.
func ResolveString(s string, ctx Context) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(token string) string {
		key := strings.TrimSpace(strings.Trim(token, "{}"))
		if val, ok := ctx.Get(key); ok {
			return val.String()
		}
		return token
	})
}

// ResolveParameters copies the parameter map, substituting placeholders in
// every value
func ResolveParameters(params map[string]string, ctx Context) map[string]string {
	resolved := make(map[string]string, len(params))
	for k, v := range params {
		resolved[k] = ResolveString(v, ctx)
	}
	return resolved
}
