package planner

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const planSystemPrompt = `You are a code-change planner for scaffolded business web applications.
Given a goal and a repository snapshot, produce a minimal, ordered list of file changes.

You MUST respond with a single JSON object in this exact format:
{
  "summary": "one-paragraph description of the change",
  "changes": [
    {
      "file_path": "relative/path/to/file",
      "operation": "create|modify|delete",
      "content": "full file content (create, or whole-file modify)",
      "edits": [{"search": "exact existing text", "replace": "replacement text"}],
      "rationale": "why this change is needed"
    }
  ],
  "tests_touched": ["relative/path/of/test/files"]
}

Rules:
- Use "edits" for surgical modifications; each "search" must match the current
  file content exactly and exactly once.
- Use "content" only for create operations or full-file rewrites.
- Never touch files outside the snapshot tree.
- Do not include a risk field; risk is computed by the caller.
Respond ONLY with the JSON object, no other text.`

// OpenAICapability implements Capability against an OpenAI-compatible API.
type OpenAICapability struct {
	client openai.Client
	model  string
}

// NewOpenAICapability creates the capability client. An empty apiKey falls
// back to OPENAI_API_KEY; an empty baseURL uses the provider default, which
// makes Azure or local OpenAI-compatible endpoints a configuration concern.
func NewOpenAICapability(apiKey, baseURL, model string) (*OpenAICapability, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (provide via parameter or OPENAI_API_KEY environment variable)")
	}
	if model == "" {
		model = "gpt-4o"
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAICapability{client: openai.NewClient(opts...), model: model}, nil
}

// GeneratePlan implements Capability.
func (c *OpenAICapability) GeneratePlan(ctx context.Context, goal, snapshot string) (string, error) {
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(planSystemPrompt),
			openai.UserMessage(buildPlanPrompt(goal, snapshot)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("planning capability call failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("planning capability returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

func buildPlanPrompt(goal, snapshot string) string {
	var b strings.Builder
	b.WriteString("# Goal\n\n")
	b.WriteString(goal)
	b.WriteString("\n\n# Repository snapshot\n\n")
	b.WriteString(snapshot)
	return b.String()
}
