package infer

import (
	"encoding/json"
	"strings"

	"github.com/mrz1836/legion/internal/domain"
	legionerrors "github.com/mrz1836/legion/internal/errors"
)

// proposalReply is the strict-JSON shape the selector prompt demands.
type proposalReply struct {
	PrimarySelector string   `json:"primary_selector"`
	Alternatives    []string `json:"alternatives"`
	Explanation     string   `json:"explanation"`
}

// parseProposals decodes the reply text into ordered proposals, primary
// first. Models sometimes wrap JSON in a fenced code block despite being told
// not to, so fences are stripped before decoding.
func parseProposals(text string) ([]domain.Proposal, error) {
	cleaned := stripFences(text)

	var reply proposalReply
	if err := json.Unmarshal([]byte(cleaned), &reply); err != nil {
		return nil, legionerrors.Wrap(legionerrors.ErrInferResponse, "reply is not valid proposal JSON")
	}
	if strings.TrimSpace(reply.PrimarySelector) == "" {
		return nil, legionerrors.Wrap(legionerrors.ErrInferResponse, "reply carries no primary selector")
	}

	proposals := make([]domain.Proposal, 0, 1+len(reply.Alternatives))
	proposals = append(proposals, domain.Proposal{
		Locator:     strings.TrimSpace(reply.PrimarySelector),
		Explanation: reply.Explanation,
	})
	seen := map[string]bool{proposals[0].Locator: true}
	for _, alt := range reply.Alternatives {
		alt = strings.TrimSpace(alt)
		if alt == "" || seen[alt] {
			continue
		}
		seen[alt] = true
		proposals = append(proposals, domain.Proposal{
			Locator:     alt,
			Explanation: reply.Explanation,
		})
	}
	return proposals, nil
}

// parseChallengeAnswer trims the reply down to the bare answer text.
func parseChallengeAnswer(text string) string {
	return strings.TrimSpace(stripFences(text))
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag, and returns the inner text. Text without a fence passes
// through untouched.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the language tag line ("json").
		trimmed = trimmed[idx+1:]
	}
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
