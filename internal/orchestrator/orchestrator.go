package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/guardianai/patch-orchestrator/internal/domain"
	"github.com/guardianai/patch-orchestrator/internal/genfix"
	"github.com/guardianai/patch-orchestrator/internal/notify"
	"github.com/guardianai/patch-orchestrator/internal/patchstore"
	"github.com/guardianai/patch-orchestrator/internal/repocontext"
)

// ContextFetcher assembles the repository context fed to the generator
type ContextFetcher interface {
	Fetch(ctx context.Context, repoURL string) (*repocontext.Context, error)
}

// FixGenerator produces file edits for a repository
type FixGenerator interface {
	Generate(ctx context.Context, repoURL string, findings []any, rc *repocontext.Context) ([]domain.Edit, error)
}

// Publisher turns an edit list into a branch, commits and a pull request
type Publisher interface {
	Publish(ctx context.Context, owner, repo string, edits []domain.Edit, baseOverride, title, body string) (*domain.PullRequest, error)
}

// EventFunc receives scan lifecycle events for broadcasting
type EventFunc func(event string, data any)

// Options carries the policy toggles the orchestrator enforces
type Options struct {
	AutoPR          bool
	RequireApproval bool
	DemoFallback    bool
}

// Orchestrator drives a scan from request to patch record, proposal or
// pull request. It is the only component that writes patch records.
type Orchestrator struct {
	store     *patchstore.Store
	fetcher   ContextFetcher
	generator FixGenerator
	publisher Publisher
	notifier  notify.Notifier
	events    EventFunc
	logger    *slog.Logger
	opts      Options

	now   func() time.Time
	newID func() string
}

func New(store *patchstore.Store, fetcher ContextFetcher, generator FixGenerator, publisher Publisher, notifier notify.Notifier, events EventFunc, logger *slog.Logger, opts Options) *Orchestrator {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	if events == nil {
		events = func(string, any) {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:     store,
		fetcher:   fetcher,
		generator: generator,
		publisher: publisher,
		notifier:  notifier,
		events:    events,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Request describes one scan. Edits, when set, bypass generation and are
// published as given.
type Request struct {
	RepoURL  string
	Findings []any
	DryRun   bool
	Edits    []domain.Edit

	PRTitle    string
	PRBody     string
	BaseBranch string

	Source domain.PatchSource

	// AllowDirect lets the caller publish even when automatic PR creation
	// is switched off.
	AllowDirect bool
}

// Result is the outcome of a scan. Exactly one of Proposal or PR is set on
// a publishing path; neither on dry runs or empty patch sets.
type Result struct {
	Record    *domain.PatchRecord `json:"record"`
	Proposal  *domain.Proposal    `json:"proposal,omitempty"`
	PR        *domain.PullRequest `json:"pr,omitempty"`
	Edits     []domain.Edit       `json:"edits"`
	DryRun    bool                `json:"dryRun,omitempty"`
	NoPatches bool                `json:"noPatches,omitempty"`
}

// Scan runs the full pipeline: validate, generate (or accept caller edits),
// persist the record, then route to dry-run, proposal or publication.
func (o *Orchestrator) Scan(ctx context.Context, req Request) (*Result, error) {
	if req.RepoURL == "" {
		return nil, domain.ErrMissingRepository
	}
	owner, repo, err := domain.ParseRepoURL(req.RepoURL)
	if err != nil {
		return nil, err
	}

	o.events("scan.started", map[string]any{"repoUrl": req.RepoURL})

	callerEdits := len(req.Edits) > 0
	edits := req.Edits
	demoFallback := false
	retryAfter := 0

	if !callerEdits {
		rc, err := o.fetcher.Fetch(ctx, req.RepoURL)
		if err != nil {
			return nil, fmt.Errorf("fetch repo context: %w", err)
		}
		edits, err = o.generator.Generate(ctx, req.RepoURL, req.Findings, rc)
		if err != nil {
			if !genfix.IsQuotaExceeded(err) {
				return nil, err
			}
			retryAfter = genfix.RetryAfterHint(err)
			if !o.opts.DemoFallback {
				return nil, &domain.QuotaError{RetryAfter: retryAfter, Cause: err}
			}
			o.logger.Warn("generation quota exhausted, using demo fallback",
				"repo", req.RepoURL, "retryAfter", retryAfter)
			edits = genfix.DemoEdits(req.RepoURL)
			demoFallback = true
		}
	}

	record := &domain.PatchRecord{
		ID:           o.newID(),
		RepoURL:      req.RepoURL,
		Patches:      edits,
		CreatedAt:    o.now().UTC(),
		Source:       o.recordSource(req),
		DemoFallback: demoFallback,
		RetryAfter:   retryAfter,
	}
	if err := o.store.AddPatch(record); err != nil {
		return nil, fmt.Errorf("persist patch record: %w", err)
	}
	o.events("patch.created", record)
	o.logger.Info("patch record created",
		"id", record.ID, "repo", record.RepoURL,
		"files", len(record.Patches), "source", record.Source)

	res := &Result{Record: record, Edits: edits}

	if req.DryRun {
		res.DryRun = true
		return res, nil
	}
	if len(edits) == 0 {
		res.NoPatches = true
		return res, nil
	}

	if o.opts.RequireApproval && !callerEdits {
		proposal := &domain.Proposal{
			ID:        o.newID(),
			RepoURL:   req.RepoURL,
			PatchID:   record.ID,
			Patches:   edits,
			CreatedAt: o.now().UTC(),
			Status:    domain.ProposalPending,
		}
		if err := o.store.AddProposal(proposal); err != nil {
			return nil, fmt.Errorf("persist proposal: %w", err)
		}
		o.events("proposal.created", proposal)
		o.logger.Info("proposal queued for approval",
			"id", proposal.ID, "repo", proposal.RepoURL)
		res.Proposal = proposal
		return res, nil
	}

	if !o.opts.AutoPR && !req.AllowDirect {
		return nil, domain.ErrPublishingDisabled
	}

	pr, err := o.publisher.Publish(ctx, owner, repo, edits, req.BaseBranch, req.PRTitle, req.PRBody)
	if err != nil {
		return nil, fmt.Errorf("publish patches: %w", err)
	}
	if err := o.store.AttachPR(record.ID, pr.URL); err != nil {
		return nil, fmt.Errorf("attach pr url: %w", err)
	}
	record.PRURL = pr.URL
	record.Source = domain.SourcePR
	res.PR = pr

	o.events("pr.created", map[string]any{"patchId": record.ID, "prUrl": pr.URL})
	o.notifyPR(req.RepoURL, pr, len(edits))
	return res, nil
}

// Approve publishes a pending proposal. Non-pending proposals are rejected
// with ErrNotPending so a second approve cannot publish twice.
func (o *Orchestrator) Approve(ctx context.Context, proposalID string) (*domain.Proposal, error) {
	proposal, err := o.store.GetProposal(proposalID)
	if err != nil {
		return nil, err
	}
	if proposal == nil {
		return nil, domain.ErrNotFound
	}
	if proposal.Status != domain.ProposalPending {
		return nil, domain.ErrNotPending
	}

	owner, repo, err := domain.ParseRepoURL(proposal.RepoURL)
	if err != nil {
		return nil, err
	}

	pr, err := o.publisher.Publish(ctx, owner, repo, proposal.Patches, "", "", "")
	if err != nil {
		return nil, fmt.Errorf("publish approved proposal: %w", err)
	}

	if err := o.store.SetProposalOutcome(proposal.ID, domain.ProposalApproved, pr.URL); err != nil {
		return nil, fmt.Errorf("record proposal outcome: %w", err)
	}
	if proposal.PatchID != "" {
		if err := o.store.AttachPR(proposal.PatchID, pr.URL); err != nil {
			return nil, fmt.Errorf("attach pr url: %w", err)
		}
	}
	proposal.Status = domain.ProposalApproved
	proposal.PRURL = pr.URL

	o.events("proposal.approved", proposal)
	o.logger.Info("proposal approved and published",
		"id", proposal.ID, "repo", proposal.RepoURL, "pr", pr.URL)
	o.notifyPR(proposal.RepoURL, pr, len(proposal.Patches))
	return proposal, nil
}

// RecordDemo persists a synthetic patch set without touching the model or
// the hosting API.
func (o *Orchestrator) RecordDemo(repoURL string) (*domain.PatchRecord, error) {
	if repoURL == "" {
		return nil, domain.ErrMissingRepository
	}
	if _, _, err := domain.ParseRepoURL(repoURL); err != nil {
		return nil, err
	}
	record := &domain.PatchRecord{
		ID:        o.newID(),
		RepoURL:   repoURL,
		Patches:   genfix.DemoEdits(repoURL),
		CreatedAt: o.now().UTC(),
		Source:    domain.SourceDemo,
	}
	if err := o.store.AddPatch(record); err != nil {
		return nil, fmt.Errorf("persist patch record: %w", err)
	}
	o.events("patch.created", record)
	return record, nil
}

func (o *Orchestrator) recordSource(req Request) domain.PatchSource {
	if req.Source != "" {
		return req.Source
	}
	if req.DryRun {
		return domain.SourceDryRun
	}
	return domain.SourceManualScan
}

func (o *Orchestrator) notifyPR(repoURL string, pr *domain.PullRequest, files int) {
	err := o.notifier.Send(notify.Notification{
		Title:   "Pull request opened",
		Message: fmt.Sprintf("%d file(s) patched", files),
		Type:    notify.NotifySuccess,
		RepoURL: repoURL,
		PRURL:   pr.URL,
	})
	if err != nil {
		o.logger.Warn("notification failed", "error", err)
	}
}
