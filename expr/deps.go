package expr

import (
	"regexp"
	"sort"
)

var dependencyPattern = regexp.MustCompile(`(?:^|[^A-Za-z0-9_$.])(?:host|formData)\.([A-Za-z_$][A-Za-z0-9_$]*)`)

// ExtractDependencies collects every host.X / formData.X field name referenced
// by src. It is a textual scan and does not validate the expression.
func ExtractDependencies(src string) []string {
	matches := dependencyPattern.FindAllStringSubmatch(src, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DependencyIndex maps a field name to the rule owners that read it.
type DependencyIndex map[string][]string

// Add records that owner's expression src depends on its referenced fields.
func (idx DependencyIndex) Add(owner, src string) {
	for _, dep := range ExtractDependencies(src) {
		idx[dep] = appendUnique(idx[dep], owner)
	}
}

// Dependents returns the owners to re-evaluate when field changes.
func (idx DependencyIndex) Dependents(field string) []string {
	return append([]string(nil), idx[field]...)
}

func appendUnique(in []string, value string) []string {
	for _, existing := range in {
		if existing == value {
			return in
		}
	}
	return append(in, value)
}
