package prbot

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/guardianai/patch-orchestrator/internal/domain"
)

const defaultPRBody = "Proposed fixes generated by GuardianAI autonomous patch generator."

// HostClient is the subset of the hosting API the publisher writes through
type HostClient interface {
	DefaultBranch(ctx context.Context, owner, repo string) (string, error)
	BranchSHA(ctx context.Context, owner, repo, branch string) (string, error)
	CreateBranch(ctx context.Context, owner, repo, branch, sha string) error
	ContentSHA(ctx context.Context, owner, repo, path, ref string) (string, bool, error)
	PutFile(ctx context.Context, owner, repo, branch, path, content, message, prevSHA string) error
	CreatePull(ctx context.Context, owner, repo, head, base, title, body string) (*domain.PullRequest, error)
}

// Publisher turns an ordered edit list into a branch, one commit per file,
// and a pull request. Any step's failure aborts the rest; a failed publish
// may leave an orphaned branch with partial commits.
type Publisher struct {
	client HostClient
	now    func() time.Time
}

// NewPublisher creates a Publisher against the given host client
func NewPublisher(client HostClient) *Publisher {
	return &Publisher{client: client, now: time.Now}
}

// DefaultTitle returns the PR title used when the caller supplies none
func DefaultTitle(now time.Time) string {
	return "GuardianAI: Automated Fixes " + now.UTC().Format("2006-01-02")
}

// Publish creates a timestamped branch off the base branch, applies the
// edits sequentially as one commit each, and opens a pull request.
// baseOverride selects the target branch; empty uses the repository default.
func (p *Publisher) Publish(ctx context.Context, owner, repo string, edits []domain.Edit, baseOverride, title, body string) (*domain.PullRequest, error) {
	base := baseOverride
	if base == "" {
		var err error
		base, err = p.client.DefaultBranch(ctx, owner, repo)
		if err != nil {
			return nil, err
		}
	}

	baseSHA, err := p.client.BranchSHA(ctx, owner, repo, base)
	if err != nil {
		return nil, err
	}

	branch := fmt.Sprintf("guardianai-autofix-%d", p.now().UnixMilli())
	if err := p.client.CreateBranch(ctx, owner, repo, branch, baseSHA); err != nil {
		// Name collision or transient ref failure: retry once with a suffix.
		branch = fmt.Sprintf("%s-%d", branch, rand.Intn(10000))
		if err := p.client.CreateBranch(ctx, owner, repo, branch, baseSHA); err != nil {
			return nil, err
		}
	}

	// Sequential on purpose: parallel content writes race on the branch ref.
	for _, edit := range edits {
		prevSHA, _, err := p.client.ContentSHA(ctx, owner, repo, edit.Path, branch)
		if err != nil {
			return nil, err
		}
		message := "GuardianAI: fix - " + edit.Path
		if err := p.client.PutFile(ctx, owner, repo, branch, edit.Path, edit.UpdatedContent, message, prevSHA); err != nil {
			return nil, err
		}
	}

	if title == "" {
		title = DefaultTitle(p.now())
	}
	if body == "" {
		body = defaultPRBody
	}
	return p.client.CreatePull(ctx, owner, repo, branch, base, title, body)
}
