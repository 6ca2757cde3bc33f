package genfix

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/guardianai/patch-orchestrator/internal/repocontext"
)

const (
	findingsCharBudget = 6000
	filesCharBudget    = 12000
)

const systemPrompt = `You are CodeFixer, an AI assistant that returns ONLY valid JSON. For each issue described in the user prompt, modify the relevant file content and return an array of objects {"path":"path/to/file","updatedContent":"<full file content after fix>", "summary":"short description of change"}. Do NOT include any other text.`

// BuildUserPrompt embeds the findings and sampled files, each truncated to
// its character budget.
func BuildUserPrompt(repoURL string, findings []any, rc *repocontext.Context) string {
	findingsJSON, _ := json.MarshalIndent(findings, "", "  ")
	findingsBlock := truncate(string(findingsJSON), findingsCharBudget)

	var sb strings.Builder
	for i, f := range rc.Files {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "FILE: %s\n---\n%s", f.Path, f.Content)
	}
	filesBlock := truncate(sb.String(), filesCharBudget)

	return fmt.Sprintf("REPO: %s\n\nISSUES:\n%s\n\nFILES:\n%s\n\nFor each issue, return the complete updated file content (not a diff).",
		repoURL, findingsBlock, filesBlock)
}

func truncate(s string, limit int) string {
	if len(s) > limit {
		return s[:limit]
	}
	return s
}
