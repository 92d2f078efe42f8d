// Package filter implements the package inclusion/exclusion filter (§4.4).
package filter

import (
	"fmt"
	"path/filepath"

	"github.com/azure-patch/linux-patch-core/internal/models"
)

// Filter evaluates a package against the include/exclude masks and the
// classification set requested for this operation.
type Filter struct {
	includeMasks    []string
	excludeMasks    []string
	classifications map[models.Classification]bool
}

// New constructs a Filter. An error is returned for an invalid
// classification combination (§4.4: the Unclassified sentinel together
// with any real classification).
func New(include, exclude []string, classifications []models.Classification) (*Filter, error) {
	set := make(map[models.Classification]bool, len(classifications))
	hasUnclassified := false
	hasReal := false
	for _, c := range classifications {
		set[c] = true
		if c == models.ClassificationUnclassified {
			hasUnclassified = true
		} else {
			hasReal = true
		}
	}
	if hasUnclassified && hasReal {
		return nil, fmt.Errorf("filter: invalid classification combination: %v", classifications)
	}
	return &Filter{includeMasks: include, excludeMasks: exclude, classifications: set}, nil
}

// Included reports whether pkg (and, if given, its dependency names) should
// be considered for installation:
//   - an inclusion list present AND classifications include all ⇒ the
//     inclusion list is ignored (everything already chosen);
//   - exclusion is applied last and checked against the package name and
//     every dependency name;
//   - a package matching both include and exclude is excluded;
//   - masks are shell-glob, case-sensitive.
func (f *Filter) Included(pkg models.Package, dependencyNames []string) bool {
	if f.matchesAnyExclude(pkg.Name) {
		return false
	}
	for _, dep := range dependencyNames {
		if f.matchesAnyExclude(dep) {
			return false
		}
	}

	if f.classificationsIncludeAll() {
		return true
	}
	if len(f.includeMasks) == 0 {
		return f.matchesClassification(pkg)
	}
	return f.matchesAnyInclude(pkg.Name)
}

// classificationsIncludeAll reports whether every real classification is
// selected, which makes an explicit inclusion list redundant.
func (f *Filter) classificationsIncludeAll() bool {
	for _, c := range []models.Classification{
		models.ClassificationCritical,
		models.ClassificationSecurity,
		models.ClassificationOther,
	} {
		if !f.classifications[c] {
			return false
		}
	}
	return true
}

func (f *Filter) matchesClassification(pkg models.Package) bool {
	if len(f.classifications) == 0 {
		return true
	}
	for _, c := range pkg.Classifications {
		if f.classifications[c] {
			return true
		}
	}
	return false
}

// ExcludedByMask reports whether pkg's name alone matches an exclude mask,
// independent of classification. Used by callers that need to distinguish
// "excluded" from "not selected" when reporting the three-way split (§4.3).
func (f *Filter) ExcludedByMask(pkg models.Package) bool {
	return f.matchesAnyExclude(pkg.Name)
}

func (f *Filter) matchesAnyInclude(name string) bool {
	return matchesAnyMask(f.includeMasks, name)
}

func (f *Filter) matchesAnyExclude(name string) bool {
	return matchesAnyMask(f.excludeMasks, name)
}

func matchesAnyMask(masks []string, name string) bool {
	for _, mask := range masks {
		if ok, _ := filepath.Match(mask, name); ok {
			return true
		}
	}
	return false
}
