package provider

import (
	"strconv"
	"time"
)

// Keyed is implemented by internal records that carry a stable identity.
// The loader uses Key to deduplicate records across overlapping pages.
type Keyed interface {
	Key() string
}

// Account is the internal representation of a provider user or organization.
type Account struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
	Type      string `json:"type"`
}

// Repository is the internal representation of a provider repository.
// Every field is defined after transformation; absent provider data maps
// to the zero value, never to a missing field.
type Repository struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Description   string    `json:"description"`
	Language      string    `json:"language"`
	DefaultBranch string    `json:"default_branch"`
	Stars         int64     `json:"stars"`
	Forks         int64     `json:"forks"`
	OpenIssues    int64     `json:"open_issues"`
	Private       bool      `json:"private"`
	Fork          bool      `json:"fork"`
	Owner         Account   `json:"owner"`
	URL           string    `json:"url"`
	PushedAt      time.Time `json:"pushed_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Key returns the repository identity used for merge deduplication.
// FullName is unique per provider; repositories missing one (malformed
// payloads) fall back to the numeric ID so they still dedup consistently.
func (r Repository) Key() string {
	if r.FullName != "" {
		return r.FullName
	}
	return "id:" + strconv.FormatInt(r.ID, 10)
}

// Signature is the name/email/date triple attached to a commit.
type Signature struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Date  time.Time `json:"date"`
}

// Commit is the internal representation of a single provider commit.
type Commit struct {
	SHA         string    `json:"sha"`
	Message     string    `json:"message"`
	Author      Signature `json:"author"`
	Committer   Signature `json:"committer"`
	AuthorLogin string    `json:"author_login"`
	URL         string    `json:"url"`
	Additions   int64     `json:"additions"`
	Deletions   int64     `json:"deletions"`
}

// Key returns the commit identity used for merge deduplication.
func (c Commit) Key() string {
	return c.SHA
}
