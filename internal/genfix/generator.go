package genfix

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/guardianai/patch-orchestrator/internal/domain"
	"github.com/guardianai/patch-orchestrator/internal/repocontext"
)

// Model is the black-box generative collaborator: given a system and user
// prompt it returns raw text.
type Model interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Generator turns repository context plus findings into a normalized list
// of file edits. Stateless per call.
type Generator struct {
	model Model
}

// NewGenerator creates a Generator backed by the given model
func NewGenerator(model Model) *Generator {
	return &Generator{model: model}
}

// Generate builds the prompt, invokes the model, and parses the response.
// It returns a possibly-empty edit list, or fails as a whole; no partial
// salvage.
func (g *Generator) Generate(ctx context.Context, repoURL string, findings []any, rc *repocontext.Context) ([]domain.Edit, error) {
	user := BuildUserPrompt(repoURL, findings, rc)
	text, err := g.model.Generate(ctx, systemPrompt, user)
	if err != nil {
		return nil, err
	}
	return ParseEdits(text)
}

// ParseEdits recovers the edit list from model output. Markdown code-fence
// wrappers and stray prose around the JSON array are tolerated; anything
// else fails with ErrMalformedResponse.
func ParseEdits(text string) ([]domain.Edit, error) {
	clean := strings.TrimSpace(text)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)

	start := strings.Index(clean, "[")
	end := strings.LastIndex(clean, "]")
	if start != -1 && end > start {
		clean = clean[start : end+1]
	}

	var raw []struct {
		Path           string `json:"path"`
		UpdatedContent string `json:"updatedContent"`
		Content        string `json:"content"`
		Summary        string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(clean), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}

	edits := []domain.Edit{}
	for _, e := range raw {
		content := e.UpdatedContent
		if content == "" {
			content = e.Content
		}
		if e.Path == "" || content == "" {
			continue
		}
		edits = append(edits, domain.Edit{
			Path:           e.Path,
			UpdatedContent: content,
			Summary:        e.Summary,
		})
	}
	return edits, nil
}
