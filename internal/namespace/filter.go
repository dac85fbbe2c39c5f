package namespace

import (
	ignore "github.com/sabhiram/go-gitignore"
)

// tagFilter decides which tags stay out of the namespace. Patterns use
// gitignore syntax and match against a tag's full hierarchical path
// ("Travel/Italy"), so a pattern naming a parent tag also excludes its
// nested tags.
type tagFilter struct {
	ignore *ignore.GitIgnore
}

func newTagFilter(patterns []string) *tagFilter {
	f := &tagFilter{}
	if len(patterns) > 0 {
		f.ignore = ignore.CompileIgnoreLines(patterns...)
	}
	return f
}

// Excluded reports whether the tag path matches an exclusion pattern.
func (f *tagFilter) Excluded(tagPath string) bool {
	return f.ignore != nil && f.ignore.MatchesPath(tagPath)
}
