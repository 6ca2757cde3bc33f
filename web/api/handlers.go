package api

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/flate"

	"github.com/guardianai/patch-orchestrator/internal/domain"
	"github.com/guardianai/patch-orchestrator/internal/githubapi"
	"github.com/guardianai/patch-orchestrator/internal/orchestrator"
	"github.com/guardianai/patch-orchestrator/internal/signing"
)

// ScanRequest is the request body for /autofix and /scan
type ScanRequest struct {
	RepoURL    string        `json:"repoUrl"`
	Findings   []any         `json:"findings"`
	Issues     []any         `json:"issues"`
	DryRun     bool          `json:"dryRun"`
	Edits      []domain.Edit `json:"edits"`
	Patches    []domain.Edit `json:"patches"`
	PRTitle    string        `json:"prTitle"`
	PRBody     string        `json:"prBody"`
	BaseBranch string        `json:"baseBranch"`
}

// CheckRunRequest is the request body for /ci/check-run
type CheckRunRequest struct {
	RepoURL    string          `json:"repoUrl"`
	Name       string          `json:"name"`
	HeadSHA    string          `json:"headSha"`
	Status     string          `json:"status"`
	Conclusion string          `json:"conclusion"`
	Output     json.RawMessage `json:"output"`
}

func (s *Server) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

// scanHandler serves both scan entrypoints. allowDirect distinguishes
// /scan, which publishes even when automatic PR creation is off.
func (s *Server) scanHandler(allowDirect bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		findings := req.Findings
		if len(findings) == 0 {
			findings = req.Issues
		}
		edits := req.Edits
		if len(edits) == 0 {
			edits = req.Patches
		}

		res, err := s.orch.Scan(r.Context(), orchestrator.Request{
			RepoURL:     req.RepoURL,
			Findings:    findings,
			DryRun:      req.DryRun,
			Edits:       edits,
			PRTitle:     req.PRTitle,
			PRBody:      req.PRBody,
			BaseBranch:  req.BaseBranch,
			AllowDirect: allowDirect,
		})
		if err != nil {
			s.logger.Error("scan failed", "repo", req.RepoURL, "error", err)
			writeDomainError(w, err)
			return
		}

		writeJSON(w, res)
	}
}

func (s *Server) demoEditsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RepoURL string `json:"repoUrl"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		record, err := s.orch.RecordDemo(req.RepoURL)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, record)
	}
}

func (s *Server) listReposHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		repos, err := s.store.Repos()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, map[string][]string{"repos": repos})
	}
}

func (s *Server) saveReposHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Repos []string `json:"repos"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Repos == nil {
			writeError(w, http.StatusBadRequest, "repos array required")
			return
		}
		for _, repo := range req.Repos {
			if _, _, err := domain.ParseRepoURL(repo); err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("%s: %v", repo, err))
				return
			}
		}

		if err := s.store.SaveRepos(req.Repos); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, map[string][]string{"repos": req.Repos})
	}
}

func (s *Server) listProposalsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		proposals, err := s.store.ListProposals()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if proposals == nil {
			proposals = []*domain.Proposal{}
		}
		writeJSON(w, proposals)
	}
}

func (s *Server) approveProposalHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		proposal, err := s.orch.Approve(r.Context(), id)
		if err != nil {
			s.logger.Error("approve failed", "proposal", id, "error", err)
			writeDomainError(w, err)
			return
		}
		writeJSON(w, proposal)
	}
}

func (s *Server) listPatchesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patches, err := s.store.ListPatches()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if patches == nil {
			patches = []*domain.PatchRecord{}
		}
		writeJSON(w, patches)
	}
}

func (s *Server) getPatchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, err := s.loadPatch(w, r)
		if record == nil || err != nil {
			return
		}
		writeJSON(w, record)
	}
}

func (s *Server) downloadPatchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, err := s.loadPatch(w, r)
		if record == nil || err != nil {
			return
		}

		data, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=patch-%s.json", record.ID))
		w.Write(data)
	}
}

func (s *Server) downloadAllHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patches, err := s.store.ListPatches()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if patches == nil {
			patches = []*domain.PatchRecord{}
		}

		data, err := json.MarshalIndent(patches, "", "  ")
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", "attachment; filename=patches.json")
		w.Write(data)
	}
}

// downloadZipHandler exports selected (or all) patch records as one archive,
// one JSON file per record.
func (s *Server) downloadZipHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var records []*domain.PatchRecord

		if ids := r.URL.Query().Get("ids"); ids != "" {
			for _, id := range strings.Split(ids, ",") {
				id = strings.TrimSpace(id)
				if id == "" {
					continue
				}
				record, err := s.store.GetPatch(id)
				if err != nil {
					writeError(w, http.StatusInternalServerError, err.Error())
					return
				}
				if record == nil {
					writeError(w, http.StatusNotFound, fmt.Sprintf("patch %s not found", id))
					return
				}
				records = append(records, record)
			}
		} else {
			all, err := s.store.ListPatches()
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			records = all
		}

		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, flate.BestSpeed)
		})
		for _, record := range records {
			f, err := zw.Create(fmt.Sprintf("patch-%s.json", record.ID))
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			data, err := json.MarshalIndent(record, "", "  ")
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if _, err := f.Write(data); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		if err := zw.Close(); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", "attachment; filename=patches.zip")
		w.Write(buf.Bytes())
	}
}

func (s *Server) signPatchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		sig, err := s.signer.Sign(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, sig)
	}
}

func (s *Server) certificateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cert, err := s.loadCertificate(w, r)
		if cert == nil || err != nil {
			return
		}
		writeJSON(w, cert)
	}
}

func (s *Server) certificatePDFHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cert, err := s.loadCertificate(w, r)
		if cert == nil || err != nil {
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=certificate-%s.pdf", cert.ID))
		w.Write(signing.RenderPDF(cert))
	}
}

func (s *Server) checkRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CheckRunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.RepoURL == "" {
			writeDomainError(w, domain.ErrMissingRepository)
			return
		}
		if req.HeadSHA == "" {
			writeError(w, http.StatusBadRequest, "headSha required")
			return
		}
		owner, repo, err := domain.ParseRepoURL(req.RepoURL)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		name := req.Name
		if name == "" {
			name = "GuardianAI Security Scan"
		}

		out, err := s.checks.CreateCheckRun(r.Context(), owner, repo, githubapi.CheckRun{
			Name:       name,
			HeadSHA:    req.HeadSHA,
			Status:     req.Status,
			Conclusion: req.Conclusion,
			Output:     req.Output,
		})
		if err != nil {
			s.logger.Error("check-run relay failed", "repo", req.RepoURL, "error", err)
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(out)
	}
}

// loadPatch resolves the {id} route parameter; a missing record answers the
// request itself and returns nil.
func (s *Server) loadPatch(w http.ResponseWriter, r *http.Request) (*domain.PatchRecord, error) {
	id := chi.URLParam(r, "id")
	record, err := s.store.GetPatch(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, err
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "patch not found")
		return nil, nil
	}
	return record, nil
}

func (s *Server) loadCertificate(w http.ResponseWriter, r *http.Request) (*signing.Certificate, error) {
	id := chi.URLParam(r, "id")
	cert, err := s.signer.Certificate(id)
	if err != nil {
		writeDomainError(w, err)
		return nil, err
	}
	return cert, nil
}
