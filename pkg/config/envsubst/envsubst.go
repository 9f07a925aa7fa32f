// Package envsubst expands ${VAR} and ${VAR:-default} references. A bare $
// is left alone, so secrets containing dollar signs survive.
package envsubst

import (
	"os"
	"strings"
)

// Expand replaces ${VAR_NAME} and ${VAR_NAME:-default} with environment
// variable values. An unset variable without default expands to "".
func Expand(content string) string {
	if !strings.Contains(content, "${") {
		return content
	}
	var out strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		expr := content[start+2 : end]
		name, def, hasDefault := strings.Cut(expr, ":-")
		value, ok := os.LookupEnv(name)
		if (!ok || value == "") && hasDefault {
			value = def
		}
		out.WriteString(content[:start])
		out.WriteString(value)
		content = content[end+1:]
	}
	out.WriteString(content)
	return out.String()
}
