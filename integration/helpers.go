//go:build integration

package integration

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// TempDBPath creates a temporary database path for testing
func TempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

// fakeGitHub is an in-memory stand-in for the parts of the GitHub REST API
// the pipeline touches: repo metadata, refs, trees, contents and pulls.
type fakeGitHub struct {
	mu            sync.Mutex
	defaultBranch string
	headSHA       string
	files         map[string]string // path -> content on the default branch
	branches      map[string]string // branch -> sha
	commits       []string          // commit messages in order
	pulls         []map[string]string
	server        *httptest.Server
}

func newFakeGitHub(t *testing.T, files map[string]string) *fakeGitHub {
	t.Helper()
	g := &fakeGitHub{
		defaultBranch: "main",
		headSHA:       "basesha000",
		files:         files,
		branches:      map[string]string{},
	}
	g.server = httptest.NewServer(http.HandlerFunc(g.handle))
	t.Cleanup(g.server.Close)
	return g
}

func (g *fakeGitHub) URL() string { return g.server.URL }

func (g *fakeGitHub) handle(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/repos/acme/widgets")
	switch {
	case path == "" && r.Method == http.MethodGet:
		writeOK(w, map[string]string{"default_branch": g.defaultBranch})

	case strings.HasPrefix(path, "/git/ref/heads/") && r.Method == http.MethodGet:
		branch := strings.TrimPrefix(path, "/git/ref/heads/")
		if branch != g.defaultBranch {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
			return
		}
		writeOK(w, map[string]any{"object": map[string]string{"sha": g.headSHA}})

	case path == "/git/refs" && r.Method == http.MethodPost:
		var body struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		g.branches[strings.TrimPrefix(body.Ref, "refs/heads/")] = body.SHA
		w.WriteHeader(http.StatusCreated)

	case strings.HasPrefix(path, "/git/trees/") && r.Method == http.MethodGet:
		branch := strings.TrimPrefix(path, "/git/trees/")
		if branch != g.defaultBranch {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
			return
		}
		var tree []map[string]string
		for p := range g.files {
			tree = append(tree, map[string]string{"path": p, "type": "blob"})
		}
		writeOK(w, map[string]any{"tree": tree})

	case strings.HasPrefix(path, "/contents/") && r.Method == http.MethodGet:
		file := strings.TrimPrefix(path, "/contents/")
		content, ok := g.files[file]
		if !ok {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
			return
		}
		writeOK(w, map[string]string{
			"sha":      "blob-" + file,
			"content":  base64.StdEncoding.EncodeToString([]byte(content)),
			"encoding": "base64",
		})

	case strings.HasPrefix(path, "/contents/") && r.Method == http.MethodPut:
		file := strings.TrimPrefix(path, "/contents/")
		var body struct {
			Message string `json:"message"`
			Content string `json:"content"`
			Branch  string `json:"branch"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		decoded, _ := base64.StdEncoding.DecodeString(body.Content)
		g.files[file] = string(decoded)
		g.commits = append(g.commits, body.Message)
		writeOK(w, map[string]any{"content": map[string]string{"path": file}})

	case path == "/pulls" && r.Method == http.MethodPost:
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		g.pulls = append(g.pulls, body)
		writeOK(w, map[string]any{
			"number":   len(g.pulls),
			"html_url": fmt.Sprintf("https://github.com/acme/widgets/pull/%d", len(g.pulls)),
		})

	default:
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}
}

// newFakeGemini serves the generateContent endpoint. A non-empty failBody
// makes every call answer 429 with that body instead.
func newFakeGemini(t *testing.T, responseText, failBody string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			http.Error(w, `{"error":"unknown endpoint"}`, http.StatusNotFound)
			return
		}
		if failBody != "" {
			http.Error(w, failBody, http.StatusTooManyRequests)
			return
		}
		writeOK(w, map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{
					"parts": []map[string]string{{"text": responseText}},
				}},
			},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func writeOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
