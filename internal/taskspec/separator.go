package taskspec

import (
	"regexp"
	"strings"

	"github.com/parallelr/parallelr/internal/errs"
)

var (
	spaceRunRe      = regexp.MustCompile(` +`)
	whitespaceRunRe = regexp.MustCompile(`\s+`)
)

// splitBySeparator implements spec.md §4.1.2 / §6: space means one-or-more
// ASCII spaces, whitespace means any whitespace run, and the remaining
// separators are single literal characters. An empty separator name means
// the whole line is a single argument.
func splitBySeparator(line, separator string) ([]string, error) {
	switch separator {
	case "":
		return []string{line}, nil
	case "space":
		return splitTrim(spaceRunRe.Split(line, -1)), nil
	case "whitespace":
		return splitTrim(whitespaceRunRe.Split(line, -1)), nil
	case "tab":
		return strings.Split(line, "\t"), nil
	case "comma":
		return strings.Split(line, ","), nil
	case "semicolon":
		return strings.Split(line, ";"), nil
	case "pipe":
		return strings.Split(line, "|"), nil
	case "colon":
		return strings.Split(line, ":"), nil
	default:
		return nil, errs.NewSpecValidationError("unknown separator: " + separator)
	}
}

func splitTrim(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
