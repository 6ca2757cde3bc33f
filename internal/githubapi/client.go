package githubapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/guardianai/patch-orchestrator/internal/domain"
)

// Client is a thin client for the GitHub REST API. Failures surface the
// upstream status and body as *domain.HostAPIError and are never retried.
type Client struct {
	base   string
	token  string
	client *http.Client
}

// New creates a Client against the given API base (e.g. https://api.github.com)
func New(base, token string) *Client {
	return &Client{
		base:  base,
		token: token,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read body: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.HostAPIError{Op: op, Status: resp.StatusCode, Body: string(data)}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return nil
}

// DefaultBranch returns the repository's configured default branch
func (c *Client) DefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	var out struct {
		DefaultBranch string `json:"default_branch"`
	}
	path := fmt.Sprintf("/repos/%s/%s", owner, repo)
	if err := c.do(ctx, "get repo", http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	if out.DefaultBranch == "" {
		return "main", nil
	}
	return out.DefaultBranch, nil
}

// BranchSHA returns the commit SHA a branch currently points at
func (c *Client) BranchSHA(ctx context.Context, owner, repo, branch string) (string, error) {
	var out struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	path := fmt.Sprintf("/repos/%s/%s/git/ref/heads/%s", owner, repo, branch)
	if err := c.do(ctx, "get base ref", http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out.Object.SHA, nil
}

// CreateBranch creates a new branch ref pointed at the given SHA
func (c *Client) CreateBranch(ctx context.Context, owner, repo, branch, sha string) error {
	body := map[string]string{
		"ref": "refs/heads/" + branch,
		"sha": sha,
	}
	path := fmt.Sprintf("/repos/%s/%s/git/refs", owner, repo)
	return c.do(ctx, "create branch", http.MethodPost, path, body, nil)
}

// ContentSHA returns the blob SHA for a file on the given ref, or ok=false
// if the file does not exist there.
func (c *Client) ContentSHA(ctx context.Context, owner, repo, filePath, ref string) (sha string, ok bool, err error) {
	var out struct {
		SHA string `json:"sha"`
	}
	path := fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s", owner, repo, url.PathEscape(filePath), url.QueryEscape(ref))
	err = c.do(ctx, "get content", http.MethodGet, path, nil, &out)
	if err != nil {
		var hostErr *domain.HostAPIError
		if errors.As(err, &hostErr) && hostErr.Status == http.StatusNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	return out.SHA, true, nil
}

// FileContent fetches and decodes a file's content from the given ref.
// The ref may be empty for the default branch.
func (c *Client) FileContent(ctx context.Context, owner, repo, filePath, ref string) (string, error) {
	var out struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	path := fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, url.PathEscape(filePath))
	if ref != "" {
		path += "?ref=" + url.QueryEscape(ref)
	}
	if err := c.do(ctx, "get file", http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	if out.Encoding == "base64" || out.Encoding == "" {
		decoded, err := base64.StdEncoding.DecodeString(stripNewlines(out.Content))
		if err != nil {
			return "", fmt.Errorf("get file: decode content: %w", err)
		}
		return string(decoded), nil
	}
	return out.Content, nil
}

// PutFile creates or updates a file on a branch, producing one commit.
// prevSHA is the existing blob SHA precondition; empty for a new file.
func (c *Client) PutFile(ctx context.Context, owner, repo, branch, filePath, content, message, prevSHA string) error {
	body := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString([]byte(content)),
		"branch":  branch,
	}
	if prevSHA != "" {
		body["sha"] = prevSHA
	}
	path := fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, url.PathEscape(filePath))
	return c.do(ctx, "put file", http.MethodPut, path, body, nil)
}

// Tree returns the repository-relative paths of all blobs on a branch
func (c *Client) Tree(ctx context.Context, owner, repo, branch string) ([]string, error) {
	var out struct {
		Tree []struct {
			Path string `json:"path"`
			Type string `json:"type"`
		} `json:"tree"`
	}
	path := fmt.Sprintf("/repos/%s/%s/git/trees/%s?recursive=1", owner, repo, url.PathEscape(branch))
	if err := c.do(ctx, "get tree", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range out.Tree {
		if entry.Type == "blob" {
			paths = append(paths, entry.Path)
		}
	}
	return paths, nil
}

// CreatePull opens a pull request from head into base
func (c *Client) CreatePull(ctx context.Context, owner, repo, head, base, title, body string) (*domain.PullRequest, error) {
	req := map[string]string{
		"title": title,
		"head":  head,
		"base":  base,
		"body":  body,
	}
	var out struct {
		Number int    `json:"number"`
		URL    string `json:"html_url"`
	}
	path := fmt.Sprintf("/repos/%s/%s/pulls", owner, repo)
	if err := c.do(ctx, "create pr", http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &domain.PullRequest{Number: out.Number, URL: out.URL, Branch: head}, nil
}

// CheckRun describes a check-run status relayed to the hosting API
type CheckRun struct {
	Name       string          `json:"name"`
	HeadSHA    string          `json:"head_sha"`
	Status     string          `json:"status"`
	Conclusion string          `json:"conclusion,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
}

// CreateCheckRun creates a check run for CI integration
func (c *Client) CreateCheckRun(ctx context.Context, owner, repo string, run CheckRun) (json.RawMessage, error) {
	var out json.RawMessage
	path := fmt.Sprintf("/repos/%s/%s/check-runs", owner, repo)
	if err := c.do(ctx, "create check-run", http.MethodPost, path, run, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func stripNewlines(s string) string {
	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\n' && s[i] != '\r' {
			buf = append(buf, s[i])
		}
	}
	return string(buf)
}
