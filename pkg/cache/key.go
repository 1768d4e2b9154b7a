package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached query result.
type Key struct {
	// Resource is the kind of data cached, e.g. "repos" or "commits".
	Resource string

	// Owner and Repo scope the resource; Repo may be empty for
	// account-level queries.
	Owner string
	Repo  string

	// Params are the query parameters the result depends on.
	Params url.Values
}

// String generates a deterministic cache key string.
// Format: gitpulse:resource:owner[/repo]:param1=val1:param2=val2
//
// Example:
//
//	gitpulse:commits:octocat/hello-world:branch=main
func (k Key) String() string {
	parts := []string{"gitpulse"}

	if k.Resource != "" {
		parts = append(parts, k.Resource)
	}

	scope := k.Owner
	if k.Repo != "" {
		scope += "/" + k.Repo
	}
	if scope != "" {
		parts = append(parts, scope)
	}

	// Params sorted for determinism.
	if len(k.Params) > 0 {
		paramKeys := make([]string, 0, len(k.Params))
		for key := range k.Params {
			paramKeys = append(paramKeys, key)
		}
		sort.Strings(paramKeys)

		for _, key := range paramKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.Params.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}
