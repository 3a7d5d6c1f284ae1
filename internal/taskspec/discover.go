package taskspec

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parallelr/parallelr/internal/errs"
)

// discoverFiles implements spec.md §4.1.1: each source is a directory (whose
// immediate, non-recursive children are listed), a file (included as-is), or
// a glob pattern (expanded). Results are deduplicated, extension-filtered,
// and sorted lexicographically.
func discoverFiles(sources []string, extFilter []string) ([]string, error) {
	seen := make(map[string]struct{})
	var all []string

	for _, src := range sources {
		files, err := resolveSource(src)
		if err != nil {
			return nil, err
		}
		files = filterByExtension(files, extFilter)
		if len(files) == 0 {
			return nil, errs.NewSpecValidationError(fmt.Sprintf("task source %q produced no matching files", src))
		}
		for _, f := range files {
			abs, err := filepath.Abs(f)
			if err != nil {
				return nil, errs.WrapSpecValidationError("resolving task file path", err)
			}
			if _, dup := seen[abs]; dup {
				continue
			}
			seen[abs] = struct{}{}
			all = append(all, abs)
		}
	}

	sort.Strings(all)
	return all, nil
}

func resolveSource(src string) ([]string, error) {
	if isGlobPattern(src) {
		matches, err := filepath.Glob(src)
		if err != nil {
			return nil, errs.WrapSpecValidationError(fmt.Sprintf("invalid glob %q", src), err)
		}
		var files []string
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			files = append(files, m)
		}
		return files, nil
	}

	info, err := os.Stat(src)
	if err != nil {
		return nil, errs.WrapSpecValidationError(fmt.Sprintf("task source %q does not exist", src), err)
	}
	if info.IsDir() {
		entries, err := os.ReadDir(src)
		if err != nil {
			return nil, errs.WrapSpecValidationError(fmt.Sprintf("reading directory %q", src), err)
		}
		var files []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			files = append(files, filepath.Join(src, e.Name()))
		}
		return files, nil
	}
	if !info.Mode().IsRegular() {
		return nil, errs.NewSpecValidationError(fmt.Sprintf("task source %q is not a regular file", src))
	}
	return []string{src}, nil
}

func isGlobPattern(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

func filterByExtension(files []string, extFilter []string) []string {
	if len(extFilter) == 0 {
		return files
	}
	allowed := make(map[string]struct{}, len(extFilter))
	for _, e := range extFilter {
		allowed[strings.ToLower(e)] = struct{}{}
	}
	var out []string
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f))
		if _, ok := allowed[ext]; ok {
			out = append(out, f)
		}
	}
	return out
}

// validateTaskFile enforces spec.md §3/§4.1.1: regular, readable, within the
// configured size bound.
func validateTaskFile(path string, maxSize int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return errs.WrapSpecValidationError(fmt.Sprintf("task file %q", path), err)
	}
	if !info.Mode().IsRegular() {
		return errs.NewSpecValidationError(fmt.Sprintf("task file %q is not a regular file", path))
	}
	if info.Size() > maxSize {
		return errs.NewSpecValidationError(fmt.Sprintf("task file %q exceeds max_file_size_bytes (%d > %d)", path, info.Size(), maxSize))
	}
	f, err := os.Open(path)
	if err != nil {
		return errs.WrapSpecValidationError(fmt.Sprintf("task file %q is not readable", path), err)
	}
	f.Close()
	return nil
}
