package loader

import "github.com/gitpulse/gitpulse/pkg/provider"

// mergePage appends a page of records to existing, preserving provider
// order and dropping records whose key was already seen. seen is updated
// in place. The returned slice is freshly allocated so subscribers holding
// an earlier snapshot never observe appends.
func mergePage[T provider.Keyed](existing []T, seen map[string]struct{}, page []T) []T {
	merged := make([]T, len(existing), len(existing)+len(page))
	copy(merged, existing)

	for _, record := range page {
		key := record.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, record)
	}

	return merged
}

// indexKeys builds the seen set for records restored from cache.
func indexKeys[T provider.Keyed](records []T) map[string]struct{} {
	seen := make(map[string]struct{}, len(records))
	for _, record := range records {
		seen[record.Key()] = struct{}{}
	}
	return seen
}
