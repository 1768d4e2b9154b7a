// Package provider defines the boundary between provider-shaped payloads
// and the typed records used everywhere else in GitPulse.
//
// The provider's JSON is loosely shaped: snake_case keys, any field may be
// absent or null, numbers arrive as float64, and nested objects may be
// missing entirely. Nothing downstream of this package is allowed to touch
// that shape. Each provider shape has exactly one transformer that maps it
// to an internal record with explicit, named key reads:
//
//	ext := provider.ExternalRecord{"full_name": "octo/hello", "stargazers_count": float64(42)}
//	repo := provider.TransformRepository(ext)
//
// Transformers are pure and total: they never panic and never return an
// error. A missing, null, or wrong-typed field resolves to the record
// field's zero value, so no "undefined" ever leaks past this boundary.
//
// Key mapping is declarative (a fixed set of named reads per shape) rather
// than inferred by case-conversion heuristics, so a new provider field can
// never be silently mis-mapped onto an internal one.
package provider
