package taskspec

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/parallelr/parallelr/internal/errs"
)

var (
	argIndexRe    = regexp.MustCompile(`@ARG_(\d+)@`)
	argPlainRe    = regexp.MustCompile(`@ARG@`)
	taskTokenRe   = regexp.MustCompile(`@TASK@`)
	anyLeftoverRe = regexp.MustCompile(`@(ARG(_\d+)?|TASK)@`)
)

// validateTemplate implements spec.md §4.1.4: structural checks that apply
// once to the template, independent of any particular Task Spec, so a bad
// template fails fast before any spec is generated.
func validateTemplate(template string, hasArgsFile bool, k int, hasTaskFiles bool, separatorGiven bool) error {
	if separatorGiven && !hasArgsFile {
		return errs.NewSpecValidationError("a separator requires an arguments-file")
	}

	usesArg := argPlainRe.MatchString(template) || argIndexRe.MatchString(template)
	if usesArg && !hasArgsFile {
		return errs.NewSpecValidationError("unmatched argument placeholder: @ARG@/@ARG_i@ requires an arguments-file")
	}
	if taskTokenRe.MatchString(template) && !hasTaskFiles {
		return errs.NewSpecValidationError("unmatched @TASK@ placeholder: no task sources provided")
	}

	if hasArgsFile {
		var outOfRange []string
		for _, m := range argIndexRe.FindAllStringSubmatch(template, -1) {
			i, _ := strconv.Atoi(m[1])
			if i < 1 || i > k {
				outOfRange = append(outOfRange, m[0])
			}
		}
		if argPlainRe.MatchString(template) && k < 1 {
			outOfRange = append(outOfRange, "@ARG@")
		}
		if len(outOfRange) > 0 {
			sort.Strings(outOfRange)
			outOfRange = dedupeStrings(outOfRange)
			return errs.NewSpecValidationError(fmt.Sprintf(
				"placeholder index out of range (only %d argument(s) available): %s", k, strings.Join(outOfRange, ", ")))
		}
	}
	return nil
}

// escapeReplacement guards against Go's regexp treating "$" in a
// ReplaceAllString replacement as a submatch reference.
func escapeReplacement(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// substitute fills @TASK@, @ARG@, and @ARG_i@ into template for one
// (taskFile, args) pairing. validateTemplate must have already been called
// against the same (hasArgsFile, k, hasTaskFiles) so every placeholder here
// is known to resolve; substitute only panics-never, it returns an error on
// the defensive leftover scan as a last resort.
func substitute(template string, taskFile string, args []string) (string, error) {
	out := template
	if len(args) > 0 {
		out = argPlainRe.ReplaceAllString(out, escapeReplacement(args[0]))
		out = argIndexRe.ReplaceAllStringFunc(out, func(m string) string {
			sub := argIndexRe.FindStringSubmatch(m)
			i, _ := strconv.Atoi(sub[1])
			if i >= 1 && i <= len(args) {
				return args[i-1]
			}
			return m
		})
	}
	if taskFile != "" {
		out = taskTokenRe.ReplaceAllString(out, escapeReplacement(taskFile))
	}

	if anyLeftoverRe.MatchString(out) {
		return "", errs.NewSpecValidationError(fmt.Sprintf("unmatched placeholder remains after substitution: %q", out))
	}
	return out, nil
}
