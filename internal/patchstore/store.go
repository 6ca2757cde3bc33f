package patchstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/guardianai/patch-orchestrator/internal/domain"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for patch records, proposals,
// and the autoscan registry. Per-record upserts are atomic, so concurrent
// in-process mutations cannot lose updates.
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// AddPatch appends a patch record. Records are never deleted.
func (s *Store) AddPatch(p *domain.PatchRecord) error {
	patchesJSON, err := json.Marshal(p.Patches)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO patches (id, repo_url, patches, created_at, source, demo_fallback, retry_after, pr_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID,
		p.RepoURL,
		string(patchesJSON),
		p.CreatedAt,
		string(p.Source),
		p.DemoFallback,
		p.RetryAfter,
		p.PRURL,
	)
	return err
}

// GetPatch retrieves a patch record by id; nil if absent
func (s *Store) GetPatch(id string) (*domain.PatchRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, repo_url, patches, created_at, source, demo_fallback, retry_after, pr_url, signature, signed_at, signer
		FROM patches WHERE id = ?
	`, id)

	p, err := scanPatch(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// ListPatches returns all patch records ordered by creation time
func (s *Store) ListPatches() ([]*domain.PatchRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, repo_url, patches, created_at, source, demo_fallback, retry_after, pr_url, signature, signed_at, signer
		FROM patches ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patches []*domain.PatchRecord
	for rows.Next() {
		p, err := scanPatch(rows.Scan)
		if err != nil {
			return nil, err
		}
		patches = append(patches, p)
	}
	return patches, rows.Err()
}

// AttachPR records the published PR URL and flips the record source to 'pr'
func (s *Store) AttachPR(id, prURL string) error {
	_, err := s.db.Exec(`UPDATE patches SET pr_url = ?, source = ? WHERE id = ?`,
		prURL, string(domain.SourcePR), id)
	return err
}

// AttachSignature persists the signature triple on a record. Re-signing
// overwrites the previous triple.
func (s *Store) AttachSignature(id string, sig domain.Signature) error {
	_, err := s.db.Exec(`UPDATE patches SET signature = ?, signed_at = ?, signer = ? WHERE id = ?`,
		sig.Signature, sig.SignedAt, sig.Signer, id)
	return err
}

// AddProposal persists a pending-approval proposal
func (s *Store) AddProposal(p *domain.Proposal) error {
	patchesJSON, err := json.Marshal(p.Patches)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO proposals (id, repo_url, patch_id, patches, created_at, status, pr_url)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID,
		p.RepoURL,
		p.PatchID,
		string(patchesJSON),
		p.CreatedAt,
		string(p.Status),
		p.PRURL,
	)
	return err
}

// GetProposal retrieves a proposal by id; nil if absent
func (s *Store) GetProposal(id string) (*domain.Proposal, error) {
	row := s.db.QueryRow(`
		SELECT id, repo_url, patch_id, patches, created_at, status, pr_url
		FROM proposals WHERE id = ?
	`, id)

	p, err := scanProposal(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// ListProposals returns all proposals ordered by creation time
func (s *Store) ListProposals() ([]*domain.Proposal, error) {
	rows, err := s.db.Query(`
		SELECT id, repo_url, patch_id, patches, created_at, status, pr_url
		FROM proposals ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proposals []*domain.Proposal
	for rows.Next() {
		p, err := scanProposal(rows.Scan)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}

// SetProposalOutcome updates a proposal's status and, when non-empty, its PR URL
func (s *Store) SetProposalOutcome(id string, status domain.ProposalStatus, prURL string) error {
	if prURL != "" {
		_, err := s.db.Exec(`UPDATE proposals SET status = ?, pr_url = ? WHERE id = ?`,
			string(status), prURL, id)
		return err
	}
	_, err := s.db.Exec(`UPDATE proposals SET status = ? WHERE id = ?`, string(status), id)
	return err
}

// Repos returns the autoscan registry in insertion order
func (s *Store) Repos() ([]string, error) {
	rows, err := s.db.Query(`SELECT repo_url FROM autoscan_repos ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repos []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		repos = append(repos, url)
	}
	return repos, rows.Err()
}

// SaveRepos replaces the autoscan registry wholesale; callers compute the
// new list.
func (s *Store) SaveRepos(repos []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM autoscan_repos`); err != nil {
		return err
	}
	for _, url := range repos {
		if _, err := tx.Exec(`INSERT INTO autoscan_repos (repo_url) VALUES (?)`, url); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func scanPatch(scan func(dest ...any) error) (*domain.PatchRecord, error) {
	var p domain.PatchRecord
	var source, patchesJSON string
	var prURL, signature, signer sql.NullString
	var signedAt sql.NullTime

	err := scan(&p.ID, &p.RepoURL, &patchesJSON, &p.CreatedAt, &source, &p.DemoFallback, &p.RetryAfter, &prURL, &signature, &signedAt, &signer)
	if err != nil {
		return nil, err
	}

	p.Source = domain.PatchSource(source)
	if prURL.Valid {
		p.PRURL = prURL.String
	}
	if signature.Valid && signature.String != "" {
		p.Signature = &domain.Signature{
			Signature: signature.String,
			SignedAt:  signedAt.Time,
			Signer:    signer.String,
		}
	}

	if err := json.Unmarshal([]byte(patchesJSON), &p.Patches); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanProposal(scan func(dest ...any) error) (*domain.Proposal, error) {
	var p domain.Proposal
	var status, patchesJSON string
	var patchID, prURL sql.NullString

	err := scan(&p.ID, &p.RepoURL, &patchID, &patchesJSON, &p.CreatedAt, &status, &prURL)
	if err != nil {
		return nil, err
	}

	p.Status = domain.ProposalStatus(status)
	if patchID.Valid {
		p.PatchID = patchID.String
	}
	if prURL.Valid {
		p.PRURL = prURL.String
	}

	if err := json.Unmarshal([]byte(patchesJSON), &p.Patches); err != nil {
		return nil, err
	}
	return &p, nil
}
