package provider

// TransformAccount maps a provider owner/user object to an Account.
// A nil input yields the zero Account.
func TransformAccount(ext ExternalRecord) Account {
	return Account{
		ID:        ext.num("id"),
		Login:     ext.str("login"),
		AvatarURL: ext.str("avatar_url"),
		Type:      ext.str("type"),
	}
}

// TransformRepository maps a provider repository object to a Repository.
// The owner object is delegated to TransformAccount so the owner shape has
// exactly one mapping.
func TransformRepository(ext ExternalRecord) Repository {
	return Repository{
		ID:            ext.num("id"),
		Name:          ext.str("name"),
		FullName:      ext.str("full_name"),
		Description:   ext.str("description"),
		Language:      ext.str("language"),
		DefaultBranch: ext.str("default_branch"),
		Stars:         ext.num("stargazers_count"),
		Forks:         ext.num("forks_count"),
		OpenIssues:    ext.num("open_issues_count"),
		Private:       ext.boolean("private"),
		Fork:          ext.boolean("fork"),
		Owner:         TransformAccount(ext.object("owner")),
		URL:           ext.str("html_url"),
		PushedAt:      ext.timestamp("pushed_at"),
		UpdatedAt:     ext.timestamp("updated_at"),
	}
}

// TransformSignature maps a commit author/committer object to a Signature.
func TransformSignature(ext ExternalRecord) Signature {
	return Signature{
		Name:  ext.str("name"),
		Email: ext.str("email"),
		Date:  ext.timestamp("date"),
	}
}

// TransformCommit maps a provider commit object to a Commit.
//
// The provider nests the git-level data under "commit" while the account
// association lives at the top level; both may be null independently.
// Stats are only present on single-commit responses, so list payloads
// transform with zero additions/deletions.
func TransformCommit(ext ExternalRecord) Commit {
	git := ext.object("commit")
	stats := ext.object("stats")
	return Commit{
		SHA:         ext.str("sha"),
		Message:     git.str("message"),
		Author:      TransformSignature(git.object("author")),
		Committer:   TransformSignature(git.object("committer")),
		AuthorLogin: ext.object("author").str("login"),
		URL:         ext.str("html_url"),
		Additions:   stats.num("additions"),
		Deletions:   stats.num("deletions"),
	}
}

// TransformRepositories maps a page of repository payloads.
func TransformRepositories(exts []ExternalRecord) []Repository {
	repos := make([]Repository, 0, len(exts))
	for _, ext := range exts {
		repos = append(repos, TransformRepository(ext))
	}
	return repos
}

// TransformCommits maps a page of commit payloads.
func TransformCommits(exts []ExternalRecord) []Commit {
	commits := make([]Commit, 0, len(exts))
	for _, ext := range exts {
		commits = append(commits, TransformCommit(ext))
	}
	return commits
}
