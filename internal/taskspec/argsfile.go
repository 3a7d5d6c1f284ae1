package taskspec

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/parallelr/parallelr/internal/errs"
	"github.com/parallelr/parallelr/internal/logx"
)

// argRow is one non-blank, non-comment line of an arguments-file, split by
// the configured separator.
type argRow struct {
	lineNo int
	tokens []string
}

// parseArgumentsFile implements spec.md §4.1.2. It returns the parsed rows,
// the common column count k, and the env-var names to bind. More names than
// columns is an error; fewer names than columns is logged as a warning and
// the names are returned unchanged, so bindEnv binds only the first
// len(envNames) columns.
func parseArgumentsFile(path, separator string, envNames []string, log logx.Logger) ([]argRow, int, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, nil, errs.WrapSpecValidationError(fmt.Sprintf("opening arguments-file %q", path), err)
	}
	defer f.Close()

	var rows []argRow
	k := -1

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		tokens, err := splitBySeparator(trimmed, separator)
		if err != nil {
			return nil, 0, nil, err
		}
		if k == -1 {
			k = len(tokens)
		} else if len(tokens) != k {
			return nil, 0, nil, errs.NewSpecValidationError(fmt.Sprintf(
				"inconsistent argument counts: line %d has %d token(s), expected %d", lineNo, len(tokens), k))
		}
		rows = append(rows, argRow{lineNo: lineNo, tokens: tokens})
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, nil, errs.WrapSpecValidationError(fmt.Sprintf("reading arguments-file %q", path), err)
	}
	if len(rows) == 0 {
		return nil, 0, nil, errs.NewSpecValidationError(fmt.Sprintf("arguments-file %q contains no usable lines", path))
	}

	boundEnv := envNames
	if len(envNames) > k {
		return nil, 0, nil, errs.NewSpecValidationError(fmt.Sprintf(
			"env-var name count (%d) exceeds argument count (%d)", len(envNames), k))
	}
	if len(envNames) < k && len(envNames) > 0 {
		log.Warn("env-var name count is smaller than argument count; binding only the first names",
			logx.Int("env_names", len(envNames)), logx.Int("arguments", k))
	}

	return rows, k, boundEnv, nil
}
