package loader

import (
	"context"
	"net/url"
	"strings"

	"github.com/gitpulse/gitpulse/pkg/fetch"
	"github.com/gitpulse/gitpulse/pkg/provider"
)

// RepositorySource builds a Source yielding the repositories of the
// account named by the query key, most recently pushed first.
func RepositorySource(adapter *fetch.Adapter, perPage int) Source[provider.Repository] {
	return func(ctx context.Context, key, cursor string) ([]provider.Repository, string, error) {
		page, err := adapter.Fetch(ctx, fetch.RequestSpec{
			Path:    "/users/" + url.PathEscape(key) + "/repos",
			Query:   url.Values{"sort": []string{"pushed"}},
			Cursor:  cursor,
			PerPage: perPage,
		})
		if err != nil {
			return nil, "", err
		}
		return provider.TransformRepositories(page.Records), page.NextCursor, nil
	}
}

// CommitSource builds a Source yielding commits for a query key of the
// form "owner/repo" or "owner/repo@branch".
func CommitSource(adapter *fetch.Adapter, perPage int) Source[provider.Commit] {
	return func(ctx context.Context, key, cursor string) ([]provider.Commit, string, error) {
		repoPath, branch := splitCommitKey(key)

		query := url.Values{}
		if branch != "" {
			query.Set("sha", branch)
		}

		page, err := adapter.Fetch(ctx, fetch.RequestSpec{
			Path:    "/repos/" + repoPath + "/commits",
			Query:   query,
			Cursor:  cursor,
			PerPage: perPage,
		})
		if err != nil {
			return nil, "", err
		}
		return provider.TransformCommits(page.Records), page.NextCursor, nil
	}
}

// splitCommitKey separates "owner/repo@branch" into path and branch.
func splitCommitKey(key string) (repoPath, branch string) {
	if idx := strings.LastIndex(key, "@"); idx >= 0 {
		return key[:idx], key[idx+1:]
	}
	return key, ""
}
