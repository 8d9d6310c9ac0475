// Package sources holds the process-wide registry of source configurations.
// The registry is immutable after construction.
package sources

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar"

	"github.com/cmgoffena13/file-loader/internal/domain"
)

// Registry matches incoming file names to source configurations and exposes
// iteration for startup DDL creation.
type Registry struct {
	sources []domain.Source
}

// NewRegistry validates every source and the cross-source invariants:
// no ambiguous file patterns, no conflicting row models on a shared target.
func NewRegistry(configured ...domain.Source) (*Registry, error) {
	byName := make(map[string]struct{}, len(configured))
	byTable := make(map[string]domain.Source, len(configured))

	for _, src := range configured {
		if err := src.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byName[src.Name]; dup {
			return nil, fmt.Errorf("duplicate source name %s", src.Name)
		}
		byName[src.Name] = struct{}{}

		if existing, ok := byTable[src.TableName]; ok {
			if !sameRowModel(existing, src) {
				return nil, fmt.Errorf(
					"sources %s and %s declare target table %s with incompatible row models",
					existing.Name, src.Name, src.TableName)
			}
		} else {
			byTable[src.TableName] = src
		}
	}

	for i := 0; i < len(configured); i++ {
		for j := i + 1; j < len(configured); j++ {
			if err := checkAmbiguous(configured[i], configured[j]); err != nil {
				return nil, err
			}
		}
	}

	return &Registry{sources: configured}, nil
}

// Match returns the source whose pattern matches the file's basename. When
// several patterns match, the one with the longest literal prefix wins.
func (r *Registry) Match(fileName string) (domain.Source, bool) {
	var best domain.Source
	bestLen := -1
	for _, src := range r.sources {
		if !src.MatchesFile(fileName) {
			continue
		}
		if prefixLen := len(literalPrefix(src.FilePattern)); prefixLen > bestLen {
			best = src
			bestLen = prefixLen
		}
	}
	return best, bestLen >= 0
}

// Sources returns the registered sources for startup table creation.
func (r *Registry) Sources() []domain.Source {
	out := make([]domain.Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// literalPrefix returns the pattern characters before the first glob
// metacharacter.
func literalPrefix(pattern string) string {
	if idx := strings.IndexAny(pattern, "*?[{"); idx >= 0 {
		return pattern[:idx]
	}
	return pattern
}

// checkAmbiguous rejects source pairs whose patterns could tie at match
// time: equal-length literal prefixes with mutually overlapping patterns.
func checkAmbiguous(a, b domain.Source) error {
	prefixA := strings.ToLower(literalPrefix(a.FilePattern))
	prefixB := strings.ToLower(literalPrefix(b.FilePattern))
	if len(prefixA) != len(prefixB) {
		return nil
	}
	sampleA := strings.ToLower(sampleFor(a.FilePattern))
	sampleB := strings.ToLower(sampleFor(b.FilePattern))
	matchAB, _ := doublestar.Match(strings.ToLower(b.FilePattern), sampleA)
	matchBA, _ := doublestar.Match(strings.ToLower(a.FilePattern), sampleB)
	if matchAB || matchBA {
		return fmt.Errorf("ambiguous file patterns: %s (%s) and %s (%s)",
			a.FilePattern, a.Name, b.FilePattern, b.Name)
	}
	return nil
}

// sampleFor substitutes glob metacharacters with a literal so that overlap
// between two patterns is testable.
func sampleFor(pattern string) string {
	replacer := strings.NewReplacer("*", "0", "?", "0")
	return replacer.Replace(pattern)
}

func sameRowModel(a, b domain.Source) bool {
	if len(a.Fields) != len(b.Fields) {
		return false
	}
	fields := make(map[string]domain.FieldDefinition, len(a.Fields))
	for _, field := range a.Fields {
		fields[field.Name] = field
	}
	for _, field := range b.Fields {
		other, ok := fields[field.Name]
		if !ok || other.Type != field.Type || other.Required != field.Required {
			return false
		}
	}
	return true
}
