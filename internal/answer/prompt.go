package answer

import (
	"fmt"
	"strings"

	"github.com/regchat/cli/internal/llm"
	"github.com/regchat/cli/internal/retrieve"
	"github.com/regchat/cli/internal/session"
)

const systemPrompt = `You are a regulatory assistant answering questions about a planning and development regulations document.

Answer only from the excerpts provided in the user's message. Each excerpt is labeled with its source document and page number. When the excerpts do not contain the information needed, say so plainly and suggest consulting the full document or the local authority; do not invent regulations, clause numbers, or measurements.

Structure answers with a direct response first, followed by the specific requirements, limits, or measurements drawn from the excerpts.`

// BuildContext formats matches at or above minScore into a labeled context
// block and returns the citations for those same matches. Citations are
// derived from what goes into the prompt, never from the model's output.
func BuildContext(matches []retrieve.Match, minScore float64) (string, []session.SourceRef) {
	var parts []string
	var sources []session.SourceRef

	for _, m := range matches {
		if m.Score < minScore || m.Text == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("[Source: %s, Page: %d]\n%s", m.Source, m.PageNumber, m.Text))
		sources = append(sources, session.SourceRef{
			Source: m.Source,
			Page:   m.PageNumber,
			Score:  m.Score,
		})
	}

	if len(parts) == 0 {
		return "No relevant sections were found in the document.", nil
	}
	return strings.Join(parts, "\n\n"), sources
}

// BuildMessages assembles the completion request: the system instruction,
// a bounded window of prior turns, then the current question with its
// retrieved excerpts (and optional web context) attached.
func BuildMessages(history []session.Turn, maxTurns int, query, context, webContext string) []llm.Message {
	messages := []llm.Message{{Role: "system", Content: systemPrompt}}

	if maxTurns > 0 && len(history) > maxTurns {
		history = history[len(history)-maxTurns:]
	}
	for _, t := range history {
		messages = append(messages, llm.Message{Role: t.Role, Content: t.Text})
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Question: %s\n\nRelevant sections from the document:\n%s", query, context)
	if webContext != "" {
		user.WriteString("\n\n")
		user.WriteString(webContext)
	}
	messages = append(messages, llm.Message{Role: "user", Content: user.String()})

	return messages
}
