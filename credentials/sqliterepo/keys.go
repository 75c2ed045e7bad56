package sqliterepo

import "sort"

// sortedKeys gives writes a stable order, which keeps lock acquisition and test
// expectations deterministic.
func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
