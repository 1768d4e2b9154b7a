package cache

import (
	"net/url"
	"testing"
)

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "resource and owner",
			key:  Key{Resource: "repos", Owner: "octocat"},
			want: "gitpulse:repos:octocat",
		},
		{
			name: "owner and repo",
			key:  Key{Resource: "commits", Owner: "octocat", Repo: "hello-world"},
			want: "gitpulse:commits:octocat/hello-world",
		},
		{
			name: "params sorted deterministically",
			key: Key{
				Resource: "commits",
				Owner:    "octocat",
				Repo:     "hello-world",
				Params:   url.Values{"per_page": []string{"50"}, "branch": []string{"main"}},
			},
			want: "gitpulse:commits:octocat/hello-world:branch=main:per_page=50",
		},
		{
			name: "empty key",
			key:  Key{},
			want: "gitpulse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKey_String_Deterministic(t *testing.T) {
	key := Key{
		Resource: "repos",
		Owner:    "octocat",
		Params:   url.Values{"a": []string{"1"}, "b": []string{"2"}, "c": []string{"3"}},
	}

	first := key.String()
	for i := 0; i < 20; i++ {
		if got := key.String(); got != first {
			t.Fatalf("key string changed between calls: %q != %q", got, first)
		}
	}
}
