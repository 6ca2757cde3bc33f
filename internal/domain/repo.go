package domain

import (
	"regexp"
	"strings"
)

var repoURLPattern = regexp.MustCompile(`github\.com/([^/]+)/([^/?#]+)`)

// ParseRepoURL extracts owner and repo from a GitHub repository URL.
// Returns ErrInvalidRepoURL if the URL does not match host/owner/repo.
func ParseRepoURL(repoURL string) (owner, repo string, err error) {
	m := repoURLPattern.FindStringSubmatch(repoURL)
	if m == nil {
		return "", "", ErrInvalidRepoURL
	}
	owner = m[1]
	repo = strings.TrimSuffix(m[2], ".git")
	if owner == "" || repo == "" {
		return "", "", ErrInvalidRepoURL
	}
	return owner, repo, nil
}
