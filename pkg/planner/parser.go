package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/buildrhq/codegen/pkg/types"
)

// planDocument is the wire shape the capability is asked to emit. Any risk
// label it might add is deliberately absent: risk is computed locally.
type planDocument struct {
	Summary      string                 `json:"summary"`
	Changes      []types.ProposedChange `json:"changes"`
	TestsTouched []string               `json:"tests_touched"`
}

// parsePlanText extracts and decodes the capability's plan document. The
// output may be wrapped in thinking tags or markdown fences; both are
// stripped before the JSON object is located.
func parsePlanText(text string) (*types.Plan, error) {
	jsonStr := extractJSON(text)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON object found in plan text")
	}

	var doc planDocument
	if err := json.Unmarshal([]byte(jsonStr), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode plan document: %w", err)
	}

	plan := &types.Plan{
		Summary:      strings.TrimSpace(doc.Summary),
		Diffs:        doc.Changes,
		TestsTouched: doc.TestsTouched,
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("capability produced an invalid plan: %w", err)
	}
	return plan, nil
}

// extractJSON strips thinking tags and code fences, then returns the
// outermost JSON object.
func extractJSON(text string) string {
	jsonStr := text

	if start := strings.Index(jsonStr, "<thinking>"); start != -1 {
		if end := strings.Index(jsonStr, "</thinking>"); end != -1 {
			jsonStr = jsonStr[:start] + jsonStr[end+len("</thinking>"):]
		}
	}

	if idx := strings.Index(jsonStr, "```json"); idx != -1 {
		jsonStr = jsonStr[idx+7:]
		if end := strings.Index(jsonStr, "```"); end != -1 {
			jsonStr = jsonStr[:end]
		}
	} else if idx := strings.Index(jsonStr, "```"); idx != -1 {
		jsonStr = jsonStr[idx+3:]
		if end := strings.Index(jsonStr, "```"); end != -1 {
			jsonStr = jsonStr[:end]
		}
	}

	start := strings.Index(jsonStr, "{")
	end := strings.LastIndex(jsonStr, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return strings.TrimSpace(jsonStr[start : end+1])
}
