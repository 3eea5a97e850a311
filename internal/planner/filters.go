package planner

import (
	"fmt"
	"regexp"

	"github.com/amberline/crawlcore/internal/util"
)

// maxPatternLength caps user-supplied filter patterns. Compilation uses Go's
// RE2 engine, which cannot backtrack pathologically, so a length cap is the
// only additional cost bound needed.
const maxPatternLength = 500

// ValidationError marks a client-side input problem. Requests failing
// validation are rejected before any state is persisted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// FilterSet is the compiled include/exclude pattern set for one crawl.
type FilterSet struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// CompileFilters eagerly compiles every pattern so a malformed one fails the
// whole request up front rather than deep inside the admission path.
func CompileFilters(includePaths, excludePaths []string) (*FilterSet, error) {
	compile := func(field string, patterns []string) ([]*regexp.Regexp, error) {
		compiled := make([]*regexp.Regexp, 0, len(patterns))
		for _, pattern := range patterns {
			if len(pattern) > maxPatternLength {
				return nil, &ValidationError{
					Field:   field,
					Message: fmt.Sprintf("pattern exceeds %d characters", maxPatternLength),
				}
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, &ValidationError{
					Field:   field,
					Message: fmt.Sprintf("pattern %q does not compile: %v", pattern, err),
				}
			}
			compiled = append(compiled, re)
		}
		return compiled, nil
	}

	include, err := compile("include_paths", includePaths)
	if err != nil {
		return nil, err
	}

	exclude, err := compile("exclude_paths", excludePaths)
	if err != nil {
		return nil, err
	}

	return &FilterSet{include: include, exclude: exclude}, nil
}

// Matches reports whether a URL's path passes the filter set: it must match
// at least one include pattern (or there are none) and no exclude pattern.
func (f *FilterSet) Matches(rawURL string) bool {
	path := util.ExtractPathFromURL(rawURL)

	if len(f.include) > 0 {
		matched := false
		for _, re := range f.include {
			if re.MatchString(path) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, re := range f.exclude {
		if re.MatchString(path) {
			return false
		}
	}

	return true
}

// FilterURLs returns the subset of urls passing the filter set.
func (f *FilterSet) FilterURLs(urls []string) []string {
	if len(f.include) == 0 && len(f.exclude) == 0 {
		return urls
	}

	var filtered []string
	for _, u := range urls {
		if f.Matches(u) {
			filtered = append(filtered, u)
		}
	}
	return filtered
}
