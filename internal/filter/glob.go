package filter

import (
	"regexp"
	"strings"
)

// glob is a compiled rsync-style pattern.
//
//	*     any run of characters except /
//	**    any run of characters including /
//	?     one character except /
//	[..]  a character class, [!..] negated
//
// A leading / or any inner / anchors the pattern at the sync root;
// otherwise it may match the tail of a path. A trailing / restricts it to
// directories.
type glob struct {
	re      *regexp.Regexp
	source  string
	dirOnly bool
}

func compileGlob(pattern string) (*glob, error) {
	g := &glob{source: pattern}

	body := pattern
	if strings.HasSuffix(body, "/") {
		g.dirOnly = true
		body = strings.TrimSuffix(body, "/")
	}
	anchored := strings.Contains(body, "/")
	body = strings.TrimPrefix(body, "/")

	expr := translate(body)
	if anchored {
		expr = "^" + expr + "$"
	} else {
		expr = "(?:^|/)" + expr + "$"
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	g.re = re
	return g, nil
}

func (g *glob) matches(rel string, isDir bool) bool {
	if g.dirOnly && !isDir {
		return false
	}
	return g.re.MatchString(rel)
}

// translate rewrites glob syntax as a regular expression body.
func translate(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); {
		switch c := pattern[i]; c {
		case '*':
			if strings.HasPrefix(pattern[i:], "**/") {
				b.WriteString("(?:.*/)?")
				i += 3
			} else if strings.HasPrefix(pattern[i:], "**") {
				b.WriteString(".*")
				i += 2
			} else {
				b.WriteString("[^/]*")
				i++
			}
		case '?':
			b.WriteString("[^/]")
			i++
		case '[':
			class, n := charClass(pattern[i:])
			if n == 0 {
				b.WriteString(`\[`)
				i++
				continue
			}
			b.WriteString(class)
			i += n
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
			i++
		}
	}
	return b.String()
}

// charClass converts the bracket expression at the start of s and returns
// it with the number of bytes consumed, or 0 if the bracket is unclosed.
func charClass(s string) (string, int) {
	j := 1
	if j < len(s) && s[j] == '!' {
		j++
	}
	// A ] right after the opening bracket is literal.
	if j < len(s) && s[j] == ']' {
		j++
	}
	end := strings.IndexByte(s[j:], ']')
	if end < 0 {
		return "", 0
	}
	end += j
	inner := s[1:end]
	if strings.HasPrefix(inner, "!") {
		inner = "^" + inner[1:]
	}
	return "[" + inner + "]", end + 1
}
