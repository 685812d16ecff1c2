package infer

import (
	"fmt"
	"strings"
)

// challengePrompt asks for a bare answer so no post-processing beyond
// trimming is needed.
const challengePrompt = `The screenshot shows a verification challenge on a web page.
Answer the challenge. Reply with the answer text only, no explanation, no punctuation around it.`

// buildSelectorPrompt renders the self-healing request. The reply contract is
// strict JSON so parseProposals can stay simple.
func buildSelectorPrompt(req Request, html string) string {
	var b strings.Builder

	b.WriteString("You locate elements in HTML pages.\n\n")
	fmt.Fprintf(&b, "A selector named %q stopped matching. The element kind is %q.\n", req.EntryName, req.EntryKind)

	if len(req.FailedLocators) > 0 {
		b.WriteString("These locators all failed, do not propose them again:\n")
		for _, loc := range req.FailedLocators {
			fmt.Fprintf(&b, "  - %s\n", loc)
		}
	}

	b.WriteString("\nPropose a CSS selector or XPath expression (prefix XPath with //) that uniquely matches the intended element on the page below.\n")
	b.WriteString("Reply with JSON only, no prose, in exactly this shape:\n")
	b.WriteString(`{"primary_selector": "...", "alternatives": ["..."], "explanation": "..."}`)
	b.WriteString("\n\nPage URL: ")
	b.WriteString(req.Snapshot.URL)
	b.WriteString("\n\nPage HTML:\n")
	b.WriteString(html)

	return b.String()
}
