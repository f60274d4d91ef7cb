package parser

import (
	"context"
	"sort"

	"github.com/dshills/repoassist/pkg/types"
)

// LanguageParser parses the source of a single language
type LanguageParser interface {
	Parse(ctx context.Context, path string, content []byte) types.ParseOutcome
}

// Registry maps type tags to language parsers
type Registry struct {
	parsers map[string]LanguageParser
}

// NewRegistry returns a registry with every parser compiled into this build
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]LanguageParser)}
	r.Register("go", New())
	registerTreeSitter(r)
	return r
}

// Register installs p for tag, replacing any previous parser
func (r *Registry) Register(tag string, p LanguageParser) {
	r.parsers[tag] = p
}

// Supports reports whether a parser exists for tag
func (r *Registry) Supports(tag string) bool {
	_, ok := r.parsers[tag]
	return ok
}

// Tags returns the registered tags in sorted order
func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.parsers))
	for tag := range r.parsers {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Parse dispatches to the parser registered for tag
func (r *Registry) Parse(ctx context.Context, path, tag string, content []byte) types.ParseOutcome {
	p, ok := r.parsers[tag]
	if !ok {
		return types.Unsupported()
	}
	return p.Parse(ctx, path, content)
}
