package bedrock

import (
	"fmt"
	"strings"

	"ai-screening-call-service/internal/script"
	"ai-screening-call-service/internal/service/classifier"
)

const systemPrompt = `You classify a job candidate's spoken answer during a phone screening.
Pick exactly one category from the list you are given. If none fits, use "irrelevant".
Reply with a single JSON object and nothing else:
{"response_type": "<category>", "extracted_value": <number, text or null>}
extracted_value is the amount, count or duration the candidate stated, or null.`

func userPrompt(req classifier.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", req.Question)
	b.WriteString("Categories:\n")
	declared := false
	for _, c := range req.Categories {
		fmt.Fprintf(&b, "- %s: %s\n", c.Label, c.Description)
		declared = declared || c.Label == script.Irrelevant
	}
	if !declared {
		b.WriteString("- irrelevant: The answer does not address the question\n")
	}
	fmt.Fprintf(&b, "Candidate answer: %q\n", req.Text)
	return b.String()
}
