package signing

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/guardianai/patch-orchestrator/internal/domain"
)

type memStore struct {
	records map[string]*domain.PatchRecord
}

func newMemStore() *memStore {
	return &memStore{records: map[string]*domain.PatchRecord{}}
}

func (m *memStore) GetPatch(id string) (*domain.PatchRecord, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	clone := *rec
	return &clone, nil
}

func (m *memStore) AttachSignature(id string, sig domain.Signature) error {
	rec, ok := m.records[id]
	if !ok {
		return nil
	}
	rec.Signature = &sig
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRecord() *domain.PatchRecord {
	return &domain.PatchRecord{
		ID:        "patch-1",
		RepoURL:   "https://github.com/acme/widgets",
		Patches:   []domain.Edit{{Path: "a.go", UpdatedContent: "package a"}},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Source:    domain.SourceManualScan,
	}
}

func TestSign_ComputesHMACOverRecord(t *testing.T) {
	store := newMemStore()
	store.records["patch-1"] = testRecord()

	signer := NewSigner("secret-key", "test-signer", store, discardLogger())
	sig, err := signer.Sign("patch-1")
	if err != nil {
		t.Fatal(err)
	}
	if sig.Signer != "test-signer" {
		t.Errorf("Signer = %q", sig.Signer)
	}

	payload, _ := json.Marshal(testRecord())
	mac := hmac.New(sha256.New, []byte("secret-key"))
	mac.Write(payload)
	want := hex.EncodeToString(mac.Sum(nil))
	if sig.Signature != want {
		t.Errorf("Signature = %q, want %q", sig.Signature, want)
	}
}

func TestSign_UnknownPatch(t *testing.T) {
	signer := NewSigner("k", "s", newMemStore(), discardLogger())
	if _, err := signer.Sign("nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestSign_EmptyKeyGetsRandomKey(t *testing.T) {
	store := newMemStore()
	store.records["patch-1"] = testRecord()

	a := NewSigner("", "s", store, discardLogger())
	b := NewSigner("", "s", store, discardLogger())

	sigA, err := a.Sign("patch-1")
	if err != nil {
		t.Fatal(err)
	}
	store.records["patch-1"].Signature = nil
	sigB, err := b.Sign("patch-1")
	if err != nil {
		t.Fatal(err)
	}
	if sigA.Signature == sigB.Signature {
		t.Error("two ephemeral keys produced identical signatures")
	}
}

func TestCertificate_RoundTrip(t *testing.T) {
	store := newMemStore()
	rec := testRecord()
	rec.PRURL = "https://github.com/acme/widgets/pull/3"
	store.records["patch-1"] = rec

	signer := NewSigner("secret-key", "test-signer", store, discardLogger())

	first, err := signer.Sign("patch-1")
	if err != nil {
		t.Fatal(err)
	}
	cert, err := signer.Certificate("patch-1")
	if err != nil {
		t.Fatal(err)
	}
	if cert.Signature != first.Signature {
		t.Errorf("certificate signature %q != sign result %q", cert.Signature, first.Signature)
	}
	if cert.RepoURL != rec.RepoURL || cert.PRURL != rec.PRURL {
		t.Errorf("cert = %+v", cert)
	}

	// Re-signing overwrites; the certificate reflects the latest triple.
	signer.now = func() time.Time { return time.Now().Add(time.Hour) }
	second, err := signer.Sign("patch-1")
	if err != nil {
		t.Fatal(err)
	}
	cert, _ = signer.Certificate("patch-1")
	if cert.Signature != second.Signature {
		t.Error("certificate does not reflect the most recent signature")
	}
	if !cert.SignedAt.Equal(second.SignedAt) {
		t.Errorf("SignedAt = %v, want %v", cert.SignedAt, second.SignedAt)
	}
}

func TestCertificate_NotSigned(t *testing.T) {
	store := newMemStore()
	store.records["patch-1"] = testRecord()

	signer := NewSigner("k", "s", store, discardLogger())
	if _, err := signer.Certificate("patch-1"); !errors.Is(err, domain.ErrNotSigned) {
		t.Errorf("error = %v, want ErrNotSigned", err)
	}
	if _, err := signer.Certificate("nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRenderPDF_ContainsFields(t *testing.T) {
	cert := &Certificate{
		ID:        "patch-1",
		RepoURL:   "https://github.com/acme/widgets",
		SignedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Signer:    "test-signer",
		Signature: "deadbeef",
	}
	pdf := RenderPDF(cert)
	if !bytes.HasPrefix(pdf, []byte("%PDF-1.4")) {
		t.Error("missing PDF header")
	}
	if !bytes.HasSuffix(pdf, []byte("%%EOF\n")) {
		t.Error("missing PDF trailer")
	}
	for _, field := range []string{"patch-1", "test-signer", "deadbeef", "github.com/acme/widgets"} {
		if !bytes.Contains(pdf, []byte(field)) {
			t.Errorf("pdf missing %q", field)
		}
	}
}
