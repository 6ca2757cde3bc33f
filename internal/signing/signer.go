package signing

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/guardianai/patch-orchestrator/internal/domain"
)

// Store is the patch record access the signer needs
type Store interface {
	GetPatch(id string) (*domain.PatchRecord, error)
	AttachSignature(id string, sig domain.Signature) error
}

// Signer produces keyed integrity signatures over persisted patch records
type Signer struct {
	key      []byte
	signerID string
	store    Store
	now      func() time.Time
}

// NewSigner creates a Signer. An empty key is replaced with a fresh random
// one, which makes signatures unverifiable across restarts; that is logged
// as a warning.
func NewSigner(key, signerID string, store Store, logger *slog.Logger) *Signer {
	keyBytes := []byte(key)
	if len(keyBytes) == 0 {
		keyBytes = make([]byte, 32)
		rand.Read(keyBytes)
		logger.Warn("SIGNING_KEY not set; using an ephemeral key, signatures will not verify across restarts")
	}
	return &Signer{
		key:      keyBytes,
		signerID: signerID,
		store:    store,
		now:      time.Now,
	}
}

// Sign computes an HMAC-SHA256 over the record's serialized form and
// persists the signature triple. Signing an already-signed record
// overwrites the previous triple.
func (s *Signer) Sign(patchID string) (domain.Signature, error) {
	record, err := s.store.GetPatch(patchID)
	if err != nil {
		return domain.Signature{}, err
	}
	if record == nil {
		return domain.Signature{}, domain.ErrNotFound
	}

	// Sign the record as persisted, without any previous signature triple.
	record.Signature = nil
	payload, err := json.Marshal(record)
	if err != nil {
		return domain.Signature{}, err
	}

	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)

	sig := domain.Signature{
		Signature: hex.EncodeToString(mac.Sum(nil)),
		SignedAt:  s.now().UTC(),
		Signer:    s.signerID,
	}
	if err := s.store.AttachSignature(patchID, sig); err != nil {
		return domain.Signature{}, err
	}
	return sig, nil
}

// Certificate is the verifiable summary of a signed patch record
type Certificate struct {
	ID        string    `json:"id"`
	RepoURL   string    `json:"repoUrl"`
	SignedAt  time.Time `json:"signedAt"`
	Signer    string    `json:"signer"`
	Signature string    `json:"signature"`
	PRURL     string    `json:"prUrl,omitempty"`
}

// Certificate returns the certificate for a signed patch record; NotSigned
// if no signature is present, NotFound for an unknown id.
func (s *Signer) Certificate(patchID string) (*Certificate, error) {
	record, err := s.store.GetPatch(patchID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrNotFound
	}
	if record.Signature == nil {
		return nil, domain.ErrNotSigned
	}
	return &Certificate{
		ID:        record.ID,
		RepoURL:   record.RepoURL,
		SignedAt:  record.Signature.SignedAt,
		Signer:    record.Signature.Signer,
		Signature: record.Signature.Signature,
		PRURL:     record.PRURL,
	}, nil
}
