package discovery

import (
	"regexp"
	"strings"
)

var (
	blockComment  = regexp.MustCompile(`(?s)/\*(.*?)\*/`)
	defaultExport = regexp.MustCompile(`(?m)^\s*export\s+default\b`)
)

// extractDescription returns the first non-empty line of the first block
// comment, or a generated fallback.
func extractDescription(src, name string) string {
	m := blockComment.FindStringSubmatch(src)
	if m != nil {
		for _, line := range strings.Split(m[1], "\n") {
			line = strings.TrimSpace(line)
			line = strings.TrimLeft(line, "*")
			line = strings.TrimSpace(line)
			if line != "" {
				return line
			}
		}
	}
	return "Generated component: " + name
}

// detectExports reports whether src has a named export called name and
// whether it has a default export.
func detectExports(src, name string) (named, hasDefault bool) {
	q := regexp.QuoteMeta(name)
	namedDecl := regexp.MustCompile(`(?m)^\s*export\s+(?:async\s+)?(?:const|let|var|function|class)\s+` + q + `\b`)
	namedList := regexp.MustCompile(`(?m)^\s*export\s*\{[^}]*\b` + q + `\b[^}]*\}`)
	named = namedDecl.MatchString(src) || namedList.MatchString(src)
	hasDefault = defaultExport.MatchString(src)
	return named, hasDefault
}
