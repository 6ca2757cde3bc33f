package repocontext

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/guardianai/patch-orchestrator/internal/domain"
)

const (
	// SampleCap bounds how many files are fetched for model context
	SampleCap = 50
	// FileCharBudget truncates each sampled file's content
	FileCharBudget = 3500

	primaryBranch   = "main"
	secondaryBranch = "master"

	sampleConcurrency = 4
)

// HostClient is the subset of the hosting API the fetcher reads from
type HostClient interface {
	FileContent(ctx context.Context, owner, repo, path, ref string) (string, error)
	Tree(ctx context.Context, owner, repo, branch string) ([]string, error)
}

// File is a sampled file with truncated content
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Context is a bounded snapshot of a repository used as model context
type Context struct {
	Readme    string   `json:"readme"`
	Manifest  string   `json:"manifest"`
	FilePaths []string `json:"filePaths"`
	Files     []File   `json:"files"`
}

// Fetcher retrieves repository snapshots from the hosting API. Pure read,
// no state.
type Fetcher struct {
	client HostClient
}

// NewFetcher creates a Fetcher backed by the given host client
func NewFetcher(client HostClient) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch returns a bounded snapshot of the repository. Individual file
// fetch failures are treated as empty content; only an unparseable URL
// fails the fetch wholesale.
func (f *Fetcher) Fetch(ctx context.Context, repoURL string) (*Context, error) {
	owner, repo, err := domain.ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	rc := &Context{}
	rc.Readme, _ = f.client.FileContent(ctx, owner, repo, "README.md", "")
	rc.Manifest, _ = f.client.FileContent(ctx, owner, repo, "package.json", "")

	paths, err := f.client.Tree(ctx, owner, repo, primaryBranch)
	if err != nil {
		paths, err = f.client.Tree(ctx, owner, repo, secondaryBranch)
	}
	if err != nil {
		// No readable tree; return what we have rather than failing the scan.
		return rc, nil
	}
	rc.FilePaths = paths

	sample := paths
	if len(sample) > SampleCap {
		sample = sample[:SampleCap]
	}

	contents := make([]string, len(sample))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sampleConcurrency)
	for i, p := range sample {
		g.Go(func() error {
			content, err := f.client.FileContent(gctx, owner, repo, p, "")
			if err != nil {
				return nil // missing file reads as empty
			}
			if len(content) > FileCharBudget {
				content = content[:FileCharBudget]
			}
			contents[i] = content
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, p := range sample {
		if contents[i] != "" {
			rc.Files = append(rc.Files, File{Path: p, Content: contents[i]})
		}
	}
	return rc, nil
}
