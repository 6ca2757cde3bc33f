package domain

import "time"

// PatchSource records how a patch set came into existence
type PatchSource string

const (
	SourceDryRun     PatchSource = "dry-run"
	SourceManualScan PatchSource = "manual-scan"
	SourceAutoscan   PatchSource = "autoscan"
	SourceProposal   PatchSource = "proposal"
	SourcePR         PatchSource = "pr"
	SourceDemo       PatchSource = "demo"
)

// ProposalStatus represents the approval state of a proposal
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalApproved ProposalStatus = "approved"
	ProposalRejected ProposalStatus = "rejected"
)

// Edit is the atomic unit moving through the pipeline: a full replacement
// file content, never a diff.
type Edit struct {
	Path           string `json:"path"`
	UpdatedContent string `json:"updatedContent"`
	Summary        string `json:"summary,omitempty"`
}

// Signature is the keyed integrity triple attached to a signed patch record
type Signature struct {
	Signature string    `json:"signature"`
	SignedAt  time.Time `json:"signedAt"`
	Signer    string    `json:"signer"`
}

// PatchRecord is the durable audit entry for one generation attempt.
// Records are immutable after creation except for PR linkage and the
// signature triple; re-signing overwrites.
type PatchRecord struct {
	ID           string      `json:"id"`
	RepoURL      string      `json:"repoUrl"`
	Patches      []Edit      `json:"patches"`
	CreatedAt    time.Time   `json:"createdAt"`
	Source       PatchSource `json:"source"`
	DemoFallback bool        `json:"demoFallback"`
	RetryAfter   int         `json:"retryAfter,omitempty"`
	PRURL        string      `json:"prUrl,omitempty"`
	Signature    *Signature  `json:"signatureInfo,omitempty"`
}

// Proposal is a patch set awaiting human approval before publication.
// PatchID links back to the patch record created at generation time so
// PR linkage never has to be re-derived by recency.
type Proposal struct {
	ID        string         `json:"id"`
	RepoURL   string         `json:"repoUrl"`
	PatchID   string         `json:"patchId,omitempty"`
	Patches   []Edit         `json:"patches"`
	CreatedAt time.Time      `json:"createdAt"`
	Status    ProposalStatus `json:"status"`
	PRURL     string         `json:"prUrl,omitempty"`
}

// PullRequest identifies a pull request created on the hosting API
type PullRequest struct {
	Number int    `json:"number"`
	URL    string `json:"html_url"`
	Branch string `json:"branch,omitempty"`
}
