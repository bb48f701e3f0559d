package proc

import (
	"fmt"
	"strings"
)

// SplitArgs splits a command-line parameter string into arguments. Single
// and double quotes group words and are removed; a backslash escapes the
// next character outside single quotes.
func SplitArgs(input string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		inArg   bool
		quote   rune
		escaped bool
	)
	for _, r := range input {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
			inArg = true
		case r == '\\' && quote != '\'':
			escaped = true
			inArg = true
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			current.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			inArg = true
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if inArg {
				args = append(args, current.String())
				current.Reset()
				inArg = false
			}
		default:
			current.WriteRune(r)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote in %q", quote, input)
	}
	if escaped {
		return nil, fmt.Errorf("trailing backslash in %q", input)
	}
	if inArg {
		args = append(args, current.String())
	}
	return args, nil
}
