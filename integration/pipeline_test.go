//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardianai/patch-orchestrator/internal/domain"
	"github.com/guardianai/patch-orchestrator/internal/genfix"
	"github.com/guardianai/patch-orchestrator/internal/githubapi"
	"github.com/guardianai/patch-orchestrator/internal/orchestrator"
	"github.com/guardianai/patch-orchestrator/internal/patchstore"
	"github.com/guardianai/patch-orchestrator/internal/prbot"
	"github.com/guardianai/patch-orchestrator/internal/repocontext"
	"github.com/guardianai/patch-orchestrator/internal/signing"
	"github.com/guardianai/patch-orchestrator/web/api"
)

const modelResponse = "```json\n" +
	`[{"path": "src/auth.go", "updatedContent": "package auth\n\nfunc check() {}\n", "summary": "validate token expiry"}]` +
	"\n```"

type stack struct {
	handler http.Handler
	gh      *fakeGitHub
	store   *patchstore.Store
}

func newStack(t *testing.T, gh *fakeGitHub, geminiURL string, opts orchestrator.Options) *stack {
	t.Helper()

	store, err := patchstore.New(TempDBPath(t))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.DiscardHandler)
	ghClient := githubapi.New(gh.URL(), "test-token")
	fetcher := repocontext.NewFetcher(ghClient)
	model := genfix.NewGeminiModel(geminiURL, "test-api-key", "gemini-2.5-flash")
	generator := genfix.NewGenerator(model)
	publisher := prbot.NewPublisher(ghClient)

	orch := orchestrator.New(store, fetcher, generator, publisher, nil, nil, logger, opts)
	signer := signing.NewSigner("integration-key", "integration-signer", store, logger)
	server := api.NewServer(orch, store, signer, ghClient, "", ":0", logger)

	return &stack{handler: server.Handler(), gh: gh, store: store}
}

func (s *stack) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload)))
	return rec
}

func (s *stack) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestFullPipelinePublishesPullRequest(t *testing.T) {
	gh := newFakeGitHub(t, map[string]string{
		"README.md":   "# widgets",
		"src/auth.go": "package auth\n",
	})
	gemini := newFakeGemini(t, modelResponse, "")
	s := newStack(t, gh, gemini.URL, orchestrator.Options{AutoPR: true, DemoFallback: true})

	rec := s.post(t, "/autofix", map[string]any{"repoUrl": "https://github.com/acme/widgets"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res orchestrator.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotNil(t, res.PR)
	assert.Equal(t, "https://github.com/acme/widgets/pull/1", res.PR.URL)
	require.Len(t, res.Edits, 1)
	assert.Equal(t, "src/auth.go", res.Edits[0].Path)

	// the fake host saw branch, commit and pull request
	require.Len(t, gh.pulls, 1)
	assert.True(t, strings.HasPrefix(gh.pulls[0]["head"], "guardianai-autofix-"))
	assert.Equal(t, "main", gh.pulls[0]["base"])
	require.Len(t, gh.commits, 1)
	assert.Equal(t, "GuardianAI: fix - src/auth.go", gh.commits[0])
	assert.Contains(t, gh.files["src/auth.go"], "func check()")

	// the record is linked and signable
	record, err := s.store.GetPatch(res.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SourcePR, record.Source)
	assert.Equal(t, res.PR.URL, record.PRURL)

	require.Equal(t, http.StatusOK, s.post(t, "/patches/"+record.ID+"/sign", nil).Code)

	certRec := s.get(t, "/patches/"+record.ID+"/certificate")
	require.Equal(t, http.StatusOK, certRec.Code)
	var cert signing.Certificate
	require.NoError(t, json.Unmarshal(certRec.Body.Bytes(), &cert))
	assert.Equal(t, "integration-signer", cert.Signer)
	assert.NotEmpty(t, cert.Signature)
	assert.Equal(t, res.PR.URL, cert.PRURL)
}

func TestQuotaExhaustionFallsBackToDemo(t *testing.T) {
	gh := newFakeGitHub(t, map[string]string{"README.md": "# widgets"})
	gemini := newFakeGemini(t, "", `{"error":{"code":429,"status":"RESOURCE_EXHAUSTED","message":"Quota exceeded. Please retry in 12.3s."}}`)
	s := newStack(t, gh, gemini.URL, orchestrator.Options{AutoPR: true, DemoFallback: true})

	rec := s.post(t, "/autofix", map[string]any{"repoUrl": "https://github.com/acme/widgets", "dryRun": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res orchestrator.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Record.DemoFallback)
	assert.Equal(t, 13, res.Record.RetryAfter)
	require.Len(t, res.Edits, 1)
	assert.Equal(t, "README.md", res.Edits[0].Path)
	assert.Empty(t, gh.pulls, "dry run must not publish")
}

func TestQuotaExhaustionWithoutFallbackReturns429(t *testing.T) {
	gh := newFakeGitHub(t, map[string]string{"README.md": "# widgets"})
	gemini := newFakeGemini(t, "", `{"error":{"status":"RESOURCE_EXHAUSTED"}}`)
	s := newStack(t, gh, gemini.URL, orchestrator.Options{AutoPR: true, DemoFallback: false})

	rec := s.post(t, "/autofix", map[string]any{"repoUrl": "https://github.com/acme/widgets"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["quotaExceeded"])
	assert.Equal(t, float64(genfix.DefaultRetryAfter), body["retryAfter"])
}

func TestApprovalGateEndToEnd(t *testing.T) {
	gh := newFakeGitHub(t, map[string]string{
		"README.md":   "# widgets",
		"src/auth.go": "package auth\n",
	})
	gemini := newFakeGemini(t, modelResponse, "")
	s := newStack(t, gh, gemini.URL, orchestrator.Options{AutoPR: true, RequireApproval: true})

	rec := s.post(t, "/autofix", map[string]any{"repoUrl": "https://github.com/acme/widgets"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res orchestrator.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotNil(t, res.Proposal)
	assert.Nil(t, res.PR)
	assert.Empty(t, gh.pulls, "nothing published before approval")

	approve := s.post(t, "/proposals/"+res.Proposal.ID+"/approve", nil)
	require.Equal(t, http.StatusOK, approve.Code, approve.Body.String())

	var approved domain.Proposal
	require.NoError(t, json.Unmarshal(approve.Body.Bytes(), &approved))
	assert.Equal(t, domain.ProposalApproved, approved.Status)
	require.Len(t, gh.pulls, 1)

	// the originating record carries the PR link
	record, err := s.store.GetPatch(res.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, approved.PRURL, record.PRURL)
}
